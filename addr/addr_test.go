package addr

import "testing"

func TestIsLowID(t *testing.T) {
	cases := []struct {
		id   uint32
		want bool
	}{
		{0, true},
		{LowIDThreshold, true},
		{LowIDThreshold + 1, false},
		{0xffffffff, false},
	}
	for _, c := range cases {
		if got := IsLowID(c.id); got != c.want {
			t.Errorf("IsLowID(%#x) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestParseEndpointRoundTrip(t *testing.T) {
	e, err := ParseEndpoint("1.2.3.4:5678")
	if err != nil {
		t.Fatal(err)
	}
	if e.String() != "1.2.3.4:5678" {
		t.Fatalf("got %v", e.String())
	}
	if e.Bannable().String() != "1.2.3.4" {
		t.Fatalf("got %v", e.Bannable().String())
	}
}

func TestParseEndpointInvalid(t *testing.T) {
	if _, err := ParseEndpoint("not-an-addr"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ParseEndpoint("::1:80"); err == nil {
		t.Fatal("expected error for non-ipv4 host:port form")
	}
}
