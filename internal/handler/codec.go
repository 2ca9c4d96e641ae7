package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/pkg/patch"
)

const maxBodySize = 1 << 20

// decodeObject reads the request body as one JSON object and calls field for
// every key. Unknown keys must be skipped by field.
func decodeObject(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(errMalformed, err.Error())
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return errors.Wrap(errMalformed, "expected object")
	}
	var fieldErr error
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if err := field(d, key); err != nil {
			var verr validation.Errors
			if errors.As(err, &verr) {
				fieldErr = err
				return err
			}
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		if fieldErr != nil {
			return fieldErr
		}
		return errors.Wrap(errMalformed, err.Error())
	}
	return nil
}

// invalid reports a well-formed JSON value with the wrong shape for key.
func invalid(key string, err error) error {
	return validation.Errors{key: err}
}

func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeInt(d *jx.Decoder) (int, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Int()
}

func decodeBool(d *jx.Decoder) (bool, error) {
	return d.Bool()
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, errors.Errorf("%q is not a number", s)
		}
		return v, nil
	default:
		return decimal.Decimal{}, errors.Errorf("expected number, got %s", d.Next())
	}
}

func decodeDecimalPtr(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Errorf("%q is not an RFC3339 timestamp", s)
	}
	return t, nil
}

// decodeField fills a tri-state patch field: null yields patch.Nil, anything
// else is decoded with dec. Decode failures are reported against key.
func decodeField[T any](d *jx.Decoder, key string, f *patch.Field[T], dec func(*jx.Decoder) (T, error)) error {
	if d.Next() == jx.Null {
		if err := d.Null(); err != nil {
			return err
		}
		*f = patch.Nil[T]()
		return nil
	}
	v, err := dec(d)
	if err != nil {
		return invalid(key, err)
	}
	*f = patch.Value(v)
	return nil
}

// decodeValue decodes a plain field, reporting type errors against key.
func decodeValue[T any](d *jx.Decoder, key string, dst *T, dec func(*jx.Decoder) (T, error)) error {
	v, err := dec(d)
	if err != nil {
		return invalid(key, err)
	}
	*dst = v
	return nil
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptStr(e *jx.Encoder, s *string) {
	if s == nil {
		e.Null()
		return
	}
	e.Str(*s)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeJSON encodes the body with fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	writeRaw(w, status, e.Bytes())
}
