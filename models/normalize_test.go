package models

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	Convey("When normalizing value tables", t, func() {
		Convey("A sparse payload builds one row per position with unknown slots left nil", func() {
			raw, err := DecodeRawTable([]byte(`{"2,3,0": 0.5, "2,3,2": -0.1}`))
			So(err, ShouldBeNil)
			So(raw.Shape, ShouldEqual, ShapeSparse)

			table, rejects, err := Normalize(raw)
			So(err, ShouldBeNil)
			So(rejects, ShouldBeEmpty)
			So(len(table), ShouldEqual, 1)

			row := table[Position{Row: 2, Col: 3}]
			So(row.State, ShouldResemble, Position{Row: 2, Col: 3})
			So(*row.Values[Up], ShouldEqual, 0.5)
			So(row.Values[Down], ShouldBeNil)
			So(*row.Values[Left], ShouldEqual, -0.1)
			So(row.Values[Right], ShouldBeNil)
		})

		Convey("Dense and sparse payloads with the same values are equal", func() {
			dense, err := DecodeRawTable([]byte(`[
				{"state": [0, 0], "q_values": [1.5, null, 0, -2]},
				{"state": [4, 1], "q_values": [null, null, 3.25, null]}
			]`))
			So(err, ShouldBeNil)
			So(dense.Shape, ShouldEqual, ShapeDense)

			sparse, err := DecodeRawTable([]byte(`{"0,0,0": 1.5, "0,0,2": 0, "0,0,3": -2, "4,1,2": 3.25}`))
			So(err, ShouldBeNil)

			denseTable, _, err := Normalize(dense)
			So(err, ShouldBeNil)
			sparseTable, _, err := Normalize(sparse)
			So(err, ShouldBeNil)
			So(denseTable.Equal(sparseTable), ShouldBeTrue)

			Convey("And a zero is kept distinct from an unknown value", func() {
				v, ok := denseTable[Position{}].Values.Known(Left)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 0)
				_, ok = denseTable[Position{}].Values.Known(Down)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("A table converted to the sparse shape normalizes back to itself", func() {
			table := ValueTable{
				{Row: 1, Col: 2}: {State: Position{Row: 1, Col: 2}, Values: Values{Float(0.1), nil, Float(7), nil}},
			}
			back, rejects, err := Normalize(SparseTable(table.Sparse()))
			So(err, ShouldBeNil)
			So(rejects, ShouldBeEmpty)
			So(back.Equal(table), ShouldBeTrue)
		})

		Convey("Bad sparse keys are skipped and reported without aborting the payload", func() {
			raw := SparseTable(map[string]*float64{
				"1,1,1":   Float(2),
				"1,1":     Float(3),
				"a,1,0":   Float(4),
				"1,1,4":   Float(5),
				"1,1,-1":  Float(6),
				"1,1,1,1": Float(7),
				"-1,0,0":  Float(8),
			})
			table, rejects, err := Normalize(raw)
			So(err, ShouldBeNil)
			So(len(rejects), ShouldEqual, 6)
			So(len(table), ShouldEqual, 1)
			So(*table[Position{Row: 1, Col: 1}].Values[Down], ShouldEqual, 2)
			for _, reject := range rejects {
				So(errors.Is(reject, ErrMalformedPayload), ShouldBeTrue)
			}
		})

		Convey("A duplicate dense row keeps the first and reports the second", func() {
			raw := DenseTable(
				ValueRow{State: Position{Row: 0, Col: 1}, Values: Values{Float(1), nil, nil, nil}},
				ValueRow{State: Position{Row: 0, Col: 1}, Values: Values{Float(9), nil, nil, nil}},
			)
			table, rejects, err := Normalize(raw)
			So(err, ShouldBeNil)
			So(len(rejects), ShouldEqual, 1)
			So(*table[Position{Row: 0, Col: 1}].Values[Up], ShouldEqual, 1)
		})

		Convey("Payloads of neither shape fail", func() {
			for _, payload := range []string{`42`, `"q"`, `null`, ``, `true`} {
				_, err := DecodeRawTable([]byte(payload))
				So(errors.Is(err, ErrMalformedPayload), ShouldBeTrue)
			}
			_, _, err := Normalize(RawTable{})
			So(errors.Is(err, ErrMalformedPayload), ShouldBeTrue)
		})

		Convey("Dense records must carry exactly four numeric or null values", func() {
			for _, payload := range []string{
				`[{"state": [0, 0], "q_values": [1, 2, 3]}]`,
				`[{"state": [0, 0], "q_values": [1, 2, 3, 4, 5]}]`,
				`[{"state": [0, 0], "q_values": [1, "x", 3, 4]}]`,
				`[{"q_values": [1, 2, 3, 4]}]`,
				`[{"state": [0], "q_values": [1, 2, 3, 4]}]`,
			} {
				_, err := DecodeRawTable([]byte(payload))
				So(errors.Is(err, ErrMalformedPayload), ShouldBeTrue)
			}
		})
	})
}
