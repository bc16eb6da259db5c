package xmlevents

import "testing"

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		name         string
		in           []byte
		maxLen       int
		wantValue    int
		wantConsumed int
	}{
		{"simple", []byte("123"), 3, 123, 3},
		{"terminated by semicolon", []byte("42;99"), 5, 42, 2},
		{"terminated by colon", []byte("7:m"), 3, 7, 1},
		{"terminated by NUL", []byte("9\x00x"), 3, 9, 1},
		{"empty is not a failure", []byte(";"), 1, 0, 0},
		{"max len reached", []byte("12345"), 3, 123, 3},
		{"future use byte fails", []byte("1<"), 2, -1, 0},
		{"letter fails", []byte("1a"), 2, -1, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, n := ParseDecimal(tc.in, tc.maxLen)
			if v != tc.wantValue || n != tc.wantConsumed {
				t.Errorf("ParseDecimal(%q, %d) = (%d, %d), want (%d, %d)",
					tc.in, tc.maxLen, v, n, tc.wantValue, tc.wantConsumed)
			}
		})
	}
}

func TestParseParamList(t *testing.T) {
	cases := []struct {
		name        string
		in          []byte
		wantParams  []int
		wantPrivate bool
	}{
		{"single", []byte("12"), []int{12}, false},
		{"multi", []byte("12;34;56"), []int{12, 34, 56}, false},
		{"private mode", []byte("?1049"), []int{1049}, true},
		{"empty", []byte(""), nil, false},
		{"trailing separator stops", []byte("1;"), []int{1}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params, private := ParseParamList(tc.in)
			if private != tc.wantPrivate {
				t.Errorf("private = %v, want %v", private, tc.wantPrivate)
			}
			if len(params) != len(tc.wantParams) {
				t.Fatalf("params = %v, want %v", params, tc.wantParams)
			}
			for i := range params {
				if params[i] != tc.wantParams[i] {
					t.Errorf("params[%d] = %d, want %d", i, params[i], tc.wantParams[i])
				}
			}
		})
	}
}
