package version

import "testing"

func TestHandshakeTagsDefaultsNickWhenEmpty(t *testing.T) {
	tags := HandshakeTags("", 4672)
	var gotNick string
	var gotPort uint32
	for _, tag := range tags {
		switch tag.Opcode {
		case tagNick:
			gotNick = tag.S
		case tagUDPPort:
			gotPort = tag.U
		}
	}
	if gotNick != DefaultNick {
		t.Fatalf("expected default nick %q, got %q", DefaultNick, gotNick)
	}
	if gotPort != 4672 {
		t.Fatalf("expected udp port 4672, got %d", gotPort)
	}
}

func TestHandshakeTagsUsesGivenNick(t *testing.T) {
	tags := HandshakeTags("custom-nick", 0)
	for _, tag := range tags {
		if tag.Opcode == tagNick && tag.S != "custom-nick" {
			t.Fatalf("expected custom nick to be preserved, got %q", tag.S)
		}
	}
}

func TestDefaultMuleVersionIsNotOldMule(t *testing.T) {
	const oldMuleMinorVersion = 43
	minor := DefaultMuleVersion & 0xff
	if minor < oldMuleMinorVersion {
		t.Fatalf("DefaultMuleVersion minor %d would be flagged as an old mule", minor)
	}
}
