package discovery

import "testing"

func TestNewTopic_NormalizesToLowercaseHex(t *testing.T) {
	topic := NewTopic([]byte{0xAB, 0xCD, 0xEF})
	if topic.String() != "abcdef" {
		t.Errorf("String() = %q, want %q", topic.String(), "abcdef")
	}
}

func TestTopicFromString_NormalizesCase(t *testing.T) {
	topic, err := TopicFromString("ABCDEF")
	if err != nil {
		t.Fatalf("TopicFromString: %v", err)
	}
	if topic.String() != "abcdef" {
		t.Errorf("String() = %q, want %q", topic.String(), "abcdef")
	}
}

func TestTopicFromString_RejectsNonHex(t *testing.T) {
	if _, err := TopicFromString("not-hex!"); err == nil {
		t.Fatal("expected an error for a non-hex string")
	}
}

func TestTopic_WireName(t *testing.T) {
	topic, _ := TopicFromString("abcd")
	if got := topic.WireName("dns-discovery.example"); got != "abcd.dns-discovery.example" {
		t.Errorf("WireName = %q, want %q", got, "abcd.dns-discovery.example")
	}
}
