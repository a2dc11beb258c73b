package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// encodeItems serializes the full cart as one JSON array. Prices travel
// as strings so no precision is lost in the round trip.
func encodeItems(items []LineItem) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("image_ref")
		e.Str(it.ImageRef)
		e.FieldStart("unit_price")
		e.Str(it.UnitPrice.String())
		e.FieldStart("unit")
		e.Str(it.Unit)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeItems(data []byte) ([]LineItem, error) {
	d := jx.DecodeBytes(data)
	var items []LineItem
	if err := d.Arr(func(d *jx.Decoder) error {
		var it LineItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product_id":
				it.ProductID, err = d.Str()
			case "name":
				it.Name, err = d.Str()
			case "image_ref":
				it.ImageRef, err = d.Str()
			case "unit_price":
				var raw string
				if raw, err = d.Str(); err != nil {
					return err
				}
				if it.UnitPrice, err = decimal.NewFromString(raw); err != nil {
					return errors.Wrapf(err, "parse unit price %q", raw)
				}
			case "unit":
				it.Unit, err = d.Str()
			case "quantity":
				it.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode cart snapshot")
	}
	return items, nil
}
