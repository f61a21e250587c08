package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareStamps_FieldPriority(t *testing.T) {
	base := Stamp{Status: StatusActive, Time: 100, Author: -10, Module: -20, Path: -30}

	tests := []struct {
		name string
		b    Stamp
		want int
	}{
		{"equal", base, 0},
		{"later time wins over everything", Stamp{StatusInactive, 101, -99, -99, -99}, -1},
		{"status breaks time tie", Stamp{StatusPrimordial, 100, -99, -99, -99}, -1},
		{"author breaks status tie", Stamp{StatusActive, 100, -9, -99, -99}, -1},
		{"module breaks author tie", Stamp{StatusActive, 100, -10, -19, -99}, -1},
		{"path breaks module tie", Stamp{StatusActive, 100, -10, -20, -29}, -1},
		{"earlier path", Stamp{StatusActive, 100, -10, -20, -31}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareStamps(base, tt.b))
			assert.Equal(t, -tt.want, CompareStamps(tt.b, base), "order must be antisymmetric")
		})
	}
}

func TestCompareStamps_StrictTotalOrder(t *testing.T) {
	var stamps []Stamp
	for _, st := range []Status{StatusInactive, StatusActive} {
		for _, tm := range []int64{1, 2} {
			for _, a := range []Nid{-1, -2} {
				for _, p := range []Nid{-5, -6} {
					stamps = append(stamps, Stamp{Status: st, Time: tm, Author: a, Module: -3, Path: p})
				}
			}
		}
	}

	for _, a := range stamps {
		for _, b := range stamps {
			c := CompareStamps(a, b)
			if a == b {
				assert.Zero(t, c, "%v vs %v", a, b)
				continue
			}
			assert.NotZero(t, c, "distinct stamps %v and %v compared equal", a, b)
			for _, x := range stamps {
				if c < 0 && CompareStamps(b, x) < 0 {
					assert.Negative(t, CompareStamps(a, x), "transitivity %v < %v < %v", a, b, x)
				}
			}
		}
	}
}

func TestStampValidate(t *testing.T) {
	good := Stamp{Status: StatusActive, Time: 1, Author: -1, Module: -2, Path: -3}
	require.NoError(t, good.Validate())

	tests := []struct {
		name  string
		mut   func(*Stamp)
		field string
	}{
		{"zero time", func(s *Stamp) { s.Time = 0 }, "time"},
		{"unset author", func(s *Stamp) { s.Author = 0 }, "author"},
		{"unset module", func(s *Stamp) { s.Module = 0 }, "module"},
		{"unset path", func(s *Stamp) { s.Path = 0 }, "path"},
		{"unknown status", func(s *Stamp) { s.Status = 9 }, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			tt.mut(&s)
			err := s.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParseStatus(t *testing.T) {
	for s := StatusInactive; s <= StatusPrimordial; s++ {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("active")
	assert.Error(t, err)
}
