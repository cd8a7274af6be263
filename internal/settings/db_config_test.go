package settings

import (
	"encoding/json"
	"testing"
	"time"
)

func resetDBConfig(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		StoreDBConfig(time.Time{}, map[string]json.RawMessage{})
	})
}

func TestIntValueParsesLooseEncodings(t *testing.T) {
	resetDBConfig(t)
	StoreDBConfig(time.Now(), map[string]json.RawMessage{
		"raw_number":   json.RawMessage(`600`),
		"float_whole":  json.RawMessage(`600.0`),
		"quoted":       json.RawMessage(`"300"`),
		"wrapped":      json.RawMessage(`{"value": 120}`),
		"float_broken": json.RawMessage(`1.5`),
		"garbage":      json.RawMessage(`"not a number"`),
	})

	cases := []struct {
		key  string
		want int
		ok   bool
	}{
		{"raw_number", 600, true},
		{"float_whole", 600, true},
		{"quoted", 300, true},
		{"wrapped", 120, true},
		{"float_broken", 0, false},
		{"garbage", 0, false},
		{"missing", 0, false},
	}
	for _, tc := range cases {
		got, ok := IntValue(tc.key)
		if got != tc.want || ok != tc.ok {
			t.Errorf("IntValue(%q) = (%d, %v), want (%d, %v)", tc.key, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStoreDBConfigCopiesValues(t *testing.T) {
	resetDBConfig(t)
	original := json.RawMessage(`42`)
	StoreDBConfig(time.Now(), map[string]json.RawMessage{"answer": original})
	original[0] = '9'

	got, ok := IntValue("answer")
	if !ok || got != 42 {
		t.Fatalf("IntValue(answer) = (%d, %v), want (42, true)", got, ok)
	}
}

func TestDBConfigUpdatedAtTracksStores(t *testing.T) {
	resetDBConfig(t)
	stamp := time.Date(2024, 6, 17, 13, 0, 0, 0, time.UTC)
	StoreDBConfig(stamp, nil)
	if got := DBConfigUpdatedAt(); !got.Equal(stamp) {
		t.Fatalf("DBConfigUpdatedAt() = %s, want %s", got, stamp)
	}
}
