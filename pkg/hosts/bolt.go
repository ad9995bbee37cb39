package hosts

import (
	"encoding/json"
	"net"
	"time"

	"github.com/boltdb/bolt"

	"github.com/amirimatin/go-peerseed/pkg/wire"
)

var hostsBucket = []byte("hosts")

// boltAddr is the persisted JSON shape of one address record.
type boltAddr struct {
	Timestamp int64  `json:"ts"`
	Services  uint64 `json:"services"`
	IP        string `json:"ip"`
	Port      uint16 `json:"port"`
}

// Bolt is a Registry persisted in a boltdb file, so addresses gathered in one
// run survive a restart.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the address book at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(hostsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Size() int {
	var n int
	_ = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(hostsBucket).Stats().KeyN
		return nil
	})
	return n
}

func (b *Bolt) Store(addr wire.NetAddress) error {
	key := []byte(addr.Key())
	val, err := json.Marshal(boltAddr{
		Timestamp: addr.Timestamp.Unix(),
		Services:  addr.Services,
		IP:        addr.IP.String(),
		Port:      addr.Port,
	})
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(hostsBucket)
		if bk.Get(key) != nil {
			return nil
		}
		return bk.Put(key, val)
	})
}

func (b *Bolt) Addrs() []wire.NetAddress {
	var out []wire.NetAddress
	_ = b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(hostsBucket).ForEach(func(_, v []byte) error {
			var rec boltAddr
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip unreadable records
			}
			out = append(out, wire.NetAddress{
				Timestamp: time.Unix(rec.Timestamp, 0).UTC(),
				Services:  rec.Services,
				IP:        net.ParseIP(rec.IP),
				Port:      rec.Port,
			})
			return nil
		})
	})
	return out
}

func (b *Bolt) Close() error { return b.db.Close() }

var _ Registry = (*Bolt)(nil)
