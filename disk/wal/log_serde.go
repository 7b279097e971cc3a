package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"helincat/common"

	"github.com/golang/snappy"
)

type LogRecordSerDe interface {
	Serialize(lr *LogRecord) ([]byte, error)
	Deserialize(d []byte, lr *LogRecord) error
}

// BinarySerDe encodes records as uvarints and length prefixed byte strings, compressed with snappy.
type BinarySerDe struct{}

var _ LogRecordSerDe = &BinarySerDe{}

func NewBinarySerDe() *BinarySerDe {
	return &BinarySerDe{}
}

func (b *BinarySerDe) Serialize(lr *LogRecord) ([]byte, error) {
	if lr.T == TypeInvalid {
		return nil, fmt.Errorf("tried to serialize invalid log record type")
	}

	res := make([]byte, 0, 32+len(lr.TableName)+len(lr.Payload))
	res = append(res, byte(lr.T))
	res = binary.AppendUvarint(res, uint64(lr.Lsn))
	res = binary.AppendUvarint(res, uint64(lr.TableID))

	res = binary.AppendUvarint(res, uint64(len(lr.TableName)))
	res = append(res, lr.TableName...)

	res = binary.AppendUvarint(res, lr.Version)
	res = binary.AppendUvarint(res, uint64(lr.NextTableID))

	res = binary.AppendUvarint(res, uint64(len(lr.Payload)))
	res = append(res, lr.Payload...)

	return snappy.Encode(nil, res), nil
}

func (b *BinarySerDe) Deserialize(d []byte, lr *LogRecord) error {
	data, err := snappy.Decode(nil, d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty record", ErrCorruptRecord)
	}

	offset := 1
	uvarint := func() (uint64, error) {
		res, n := binary.Uvarint(data[offset:])
		if n <= 0 {
			return 0, fmt.Errorf("%w: bad uvarint at %d", ErrCorruptRecord, offset)
		}
		offset += n
		return res, nil
	}
	bytesOf := func() ([]byte, error) {
		l, err := uvarint()
		if err != nil {
			return nil, err
		}
		if uint64(len(data)-offset) < l {
			return nil, fmt.Errorf("%w: length %d overflows record", ErrCorruptRecord, l)
		}
		res := data[offset : offset+int(l)]
		offset += int(l)
		return res, nil
	}

	res := LogRecord{T: LogRecordType(data[0])}
	var v uint64
	if v, err = uvarint(); err != nil {
		return err
	}
	res.Lsn = LSN(v)
	if v, err = uvarint(); err != nil {
		return err
	}
	res.TableID = uint32(v)

	name, err := bytesOf()
	if err != nil {
		return err
	}
	res.TableName = string(name)

	if res.Version, err = uvarint(); err != nil {
		return err
	}
	if v, err = uvarint(); err != nil {
		return err
	}
	res.NextTableID = uint32(v)

	payload, err := bytesOf()
	if err != nil {
		return err
	}
	if len(payload) > 0 {
		res.Payload = payload
	}

	if !common.OneOf(res.T, TypeCreateTable, TypeDropTable, TypeAlterTable, TypeCheckpoint) {
		return fmt.Errorf("%w: unknown record type %d", ErrCorruptRecord, data[0])
	}

	*lr = res
	return nil
}

// JsonSerDe writes records as plain json. It is larger and slower than BinarySerDe, but the log can be read with
// any text tool, which is handy while debugging.
type JsonSerDe struct{}

var _ LogRecordSerDe = &JsonSerDe{}

func NewJsonSerDe() *JsonSerDe {
	return &JsonSerDe{}
}

func (j *JsonSerDe) Serialize(lr *LogRecord) ([]byte, error) {
	return json.Marshal(lr)
}

func (j *JsonSerDe) Deserialize(d []byte, lr *LogRecord) error {
	if err := json.Unmarshal(d, lr); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return nil
}
