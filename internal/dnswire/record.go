// Package dnswire provides the DNS message shapes and wire-format codecs
// consumed by pkg/discovery. None of this package understands topics,
// tokens, or peer sets — it only knows how to put bytes on a wire and
// take them back off, using github.com/miekg/dns for the underlying
// header/question/RR marshaling.
package dnswire

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// RecordType identifies the three record shapes the core cares about.
// The wire protocol carries other RR types (NS, SOA, ...) but the core
// never looks at them.
type RecordType int

const (
	TypeA RecordType = iota
	TypeSRV
	TypeTXT
)

func (t RecordType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeSRV:
		return "SRV"
	case TypeTXT:
		return "TXT"
	default:
		return "UNKNOWN"
	}
}

// Question is a single DNS question (name + desired record type).
type Question struct {
	Name string
	Type RecordType
}

// SRVData is the target/port pair carried by an SRV answer.
type SRVData struct {
	Port   uint16
	Target string
}

// Record is one answer/additional RR. Exactly one of AData, SRVData, or
// TXTData is populated, selected by Type.
type Record struct {
	Type RecordType
	Name string
	TTL  uint32

	AData   string  // dotted-quad IPv4, valid when Type == TypeA
	SRVData SRVData // valid when Type == TypeSRV
	TXTData []byte  // raw key/value payload, valid when Type == TypeTXT
}

// Message is a DNS message reduced to the three sections the core reads
// or writes: the question(s) being asked, the direct answers, and the
// additional records riding along with them (spec.md §6).
type Message struct {
	ID          uint16
	Questions   []Question
	Answers     []Record
	Additionals []Record
}

// NewQuery builds a minimal query message for a single question plus
// whatever additionals the caller wants delivered alongside it (the core
// piggy-backs announce/lookup payloads on the additionals section of a
// TXT query, per spec.md §4.3).
func NewQuery(name string, qtype RecordType, additionals ...Record) *Message {
	return &Message{
		Questions:   []Question{{Name: name, Type: qtype}},
		Additionals: additionals,
	}
}

// Marshal encodes m as a DNS wire-format packet.
func Marshal(m *Message) ([]byte, error) {
	msg := new(dns.Msg)
	msg.Id = m.ID
	msg.Response = len(m.Answers) > 0
	for _, q := range m.Questions {
		msg.Question = append(msg.Question, dns.Question{
			Name:   dns.Fqdn(q.Name),
			Qtype:  rrType(q.Type),
			Qclass: dns.ClassINET,
		})
	}
	for _, a := range m.Answers {
		rr, err := toRR(a)
		if err != nil {
			return nil, fmt.Errorf("dnswire: marshal answer %s: %w", a.Name, err)
		}
		msg.Answer = append(msg.Answer, rr)
	}
	for _, a := range m.Additionals {
		rr, err := toRR(a)
		if err != nil {
			return nil, fmt.Errorf("dnswire: marshal additional %s: %w", a.Name, err)
		}
		msg.Extra = append(msg.Extra, rr)
	}
	return msg.Pack()
}

// Unmarshal decodes a DNS wire-format packet into the reduced Message
// shape. Record types the core doesn't consume are silently dropped.
func Unmarshal(data []byte) (*Message, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		return nil, fmt.Errorf("dnswire: unpack: %w", err)
	}
	out := &Message{ID: msg.Id}
	for _, q := range msg.Question {
		rt, ok := fromQtype(q.Qtype)
		if !ok {
			continue
		}
		out.Questions = append(out.Questions, Question{Name: trimDot(q.Name), Type: rt})
	}
	for _, rr := range msg.Answer {
		if rec, ok := fromRR(rr); ok {
			out.Answers = append(out.Answers, rec)
		}
	}
	for _, rr := range msg.Extra {
		if rec, ok := fromRR(rr); ok {
			out.Additionals = append(out.Additionals, rec)
		}
	}
	return out, nil
}

func rrType(t RecordType) uint16 {
	switch t {
	case TypeA:
		return dns.TypeA
	case TypeSRV:
		return dns.TypeSRV
	case TypeTXT:
		return dns.TypeTXT
	default:
		return dns.TypeTXT
	}
}

func fromQtype(qt uint16) (RecordType, bool) {
	switch qt {
	case dns.TypeA:
		return TypeA, true
	case dns.TypeSRV:
		return TypeSRV, true
	case dns.TypeTXT:
		return TypeTXT, true
	default:
		return 0, false
	}
}

func toRR(r Record) (dns.RR, error) {
	hdr := dns.RR_Header{
		Name:   dns.Fqdn(r.Name),
		Rrtype: rrType(r.Type),
		Class:  dns.ClassINET,
		Ttl:    r.TTL,
	}
	switch r.Type {
	case TypeA:
		ip := net.ParseIP(r.AData).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv4 address %q", r.AData)
		}
		return &dns.A{Hdr: hdr, A: ip}, nil
	case TypeSRV:
		return &dns.SRV{
			Hdr:      hdr,
			Priority: 0,
			Weight:   0,
			Port:     r.SRVData.Port,
			Target:   dns.Fqdn(r.SRVData.Target),
		}, nil
	case TypeTXT:
		return &dns.TXT{Hdr: hdr, Txt: []string{string(r.TXTData)}}, nil
	default:
		return nil, fmt.Errorf("unsupported record type %v", r.Type)
	}
}

func fromRR(rr dns.RR) (Record, bool) {
	hdr := rr.Header()
	switch v := rr.(type) {
	case *dns.A:
		return Record{Type: TypeA, Name: trimDot(hdr.Name), TTL: hdr.Ttl, AData: v.A.String()}, true
	case *dns.SRV:
		return Record{
			Type: TypeSRV,
			Name: trimDot(hdr.Name),
			TTL:  hdr.Ttl,
			SRVData: SRVData{
				Port:   v.Port,
				Target: trimDot(v.Target),
			},
		}, true
	case *dns.TXT:
		var joined []byte
		for _, s := range v.Txt {
			joined = append(joined, []byte(s)...)
		}
		return Record{Type: TypeTXT, Name: trimDot(hdr.Name), TTL: hdr.Ttl, TXTData: joined}, true
	default:
		return Record{}, false
	}
}

func trimDot(name string) string {
	if len(name) > 0 && name[len(name)-1] == '.' {
		return name[:len(name)-1]
	}
	return name
}
