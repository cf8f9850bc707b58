package compare

import (
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spaolacci/murmur3"
)

// Key tags keep values of different kinds from colliding, so the string
// "1" and the integer 1 produce different keys.
const (
	tagNull   = 'z'
	tagNumber = 'n'
	tagFloat  = 'f'
	tagString = 's'
	tagBool   = 'b'
	tagTime   = 't'
	tagOther  = 'o'
)

// AppendKey appends a type-tagged, length-prefixed encoding of v to buf.
// Numbers are normalized so that int64(1), float64(1) and decimal 1.0
// encode identically. Two nils encode identically.
func AppendKey(buf []byte, v interface{}) []byte {
	var tag byte
	var body string
	switch val := v.(type) {
	case nil:
		return append(buf, tagNull, ';')
	case string:
		tag, body = tagString, val
	case []byte:
		tag, body = tagString, string(val)
	case bool:
		tag, body = tagBool, strconv.FormatBool(val)
	case time.Time:
		tag, body = tagTime, val.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		tag, body = tagNumber, val.String()
	case float64:
		tag, body = floatKey(val)
	case float32:
		tag, body = floatKey(float64(val))
	default:
		if i, ok := ToInt64Exact(v); ok {
			tag, body = tagNumber, strconv.FormatInt(i, 10)
		} else {
			tag, body = tagOther, ToString(v)
		}
	}
	buf = append(buf, tag)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, ':')
	return append(buf, body...)
}

func floatKey(f float64) (byte, string) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return tagFloat, strconv.FormatFloat(f, 'g', -1, 64)
	}
	return tagNumber, decimal.NewFromFloat(f).String()
}

// Key encodes a value tuple for use as a map key.
func Key(values []interface{}) string {
	var buf []byte
	for _, v := range values {
		buf = AppendKey(buf, v)
	}
	return string(buf)
}

// Hash returns the murmur3 hash of an encoded key.
func Hash(key string) uint64 {
	return murmur3.Sum64([]byte(key))
}
