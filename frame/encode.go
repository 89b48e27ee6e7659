package frame

import (
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeDB serializes a db snapshot with msgpack.
func EncodeDB(db DB) ([]byte, error) {
	return msgpack.Marshal(db)
}

// DecodeDB deserializes a db snapshot produced by EncodeDB. Nested maps come
// back as map[string]any so GetIn and AssocIn keep working on the result.
func DecodeDB(data []byte) (DB, error) {
	var db DB
	if err := msgpack.Unmarshal(data, &db); err != nil {
		return nil, err
	}
	return db, nil
}
