package osc

import (
	"math"
	"reflect"
	"testing"
)

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]string{
		"":       "osc",
		"osc":    "osc",
		"binary": "osc",
		"JSON":   "json",
	} {
		c, err := CodecByName(name)
		if err != nil {
			t.Errorf("CodecByName(%q): %v", name, err)
			continue
		}
		if c.Name() != want {
			t.Errorf("CodecByName(%q).Name() = %q, want %q", name, c.Name(), want)
		}
	}

	if _, err := CodecByName("msgpack"); err == nil {
		t.Error("CodecByName(msgpack) should fail")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	msgs := []*Message{
		NewMessage("/stopRecording"),
		NewMessage("/startRecording", 1),
		NewMessage("/recordingStatus", false),
		NewMessage("/transcription", "hello world", 0.75),
		NewMessage("/mixed", int32(-7), int64(math.MaxInt64), float64(2), "", nil, true),
	}

	for _, codec := range []Codec{BinaryCodec{}, JSONCodec{}} {
		for _, m := range msgs {
			data, err := codec.Encode(m)
			if err != nil {
				t.Errorf("%s: Encode(%v): %v", codec.Name(), m, err)
				continue
			}
			got, err := codec.Decode(data)
			if err != nil {
				t.Errorf("%s: Decode(%q): %v", codec.Name(), data, err)
				continue
			}
			if !got.Equals(m) {
				t.Errorf("%s: round trip got %v, want %v", codec.Name(), got, m)
			}
		}
	}
}

func TestJSONCodec_Encode(t *testing.T) {
	for _, tt := range []struct {
		msg  *Message
		want string
	}{
		{NewMessage("/stopRecording"), `{"address":"/stopRecording","args":[]}`},
		{NewMessage("/startRecording", 1), `{"address":"/startRecording","args":[1]}`},
		{NewMessage("/f", 2.0, float32(0.5)), `{"address":"/f","args":[2.0,0.5]}`},
		{NewMessage("/x", "hi", true, nil, []byte("ab")), `{"address":"/x","args":["hi",true,null,"YWI="]}`},
	} {
		data, err := JSONCodec{}.Encode(tt.msg)
		if err != nil {
			t.Errorf("Encode(%v): %v", tt.msg, err)
			continue
		}
		if string(data) != tt.want {
			t.Errorf("Encode(%v) = %s, want %s", tt.msg, data, tt.want)
		}
	}
}

func TestJSONCodec_EncodeRejects(t *testing.T) {
	for _, m := range []*Message{
		NewMessage("no-slash"),
		NewMessage("/nan", math.NaN()),
		NewMessage("/inf", math.Inf(1)),
		{Address: "/chan", Arguments: []interface{}{make(chan int)}},
	} {
		if _, err := (JSONCodec{}).Encode(m); err == nil {
			t.Errorf("Encode(%v) should fail", m)
		}
	}
}

func TestJSONCodec_Decode(t *testing.T) {
	for _, tt := range []struct {
		raw     string
		want    []interface{}
		wantErr bool
	}{
		{`{"address":"/a"}`, nil, false},
		{`{"address":"/a","args":[]}`, nil, false},
		{"{\"address\":\"/a\"}\n", nil, false},
		{`{"address":"/a","args":[1, -2147483648]}`, []interface{}{int32(1), int32(math.MinInt32)}, false},
		{`{"address":"/a","args":[2147483648]}`, []interface{}{int64(2147483648)}, false},
		{`{"address":"/a","args":[1.0, 1e3, 0.25]}`, []interface{}{1.0, 1000.0, 0.25}, false},
		{`{"address":"/a","args":["s", false, null]}`, []interface{}{"s", false, nil}, false},
		{`{"address":"/a","args":[1e400]}`, nil, true},
	} {
		m, err := JSONCodec{}.Decode([]byte(tt.raw))
		if (err != nil) != tt.wantErr {
			t.Errorf("Decode(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if !reflect.DeepEqual(m.Arguments, tt.want) {
			t.Errorf("Decode(%s) args = %#v, want %#v", tt.raw, m.Arguments, tt.want)
		}
	}
}

func TestJSONCodec_DecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		``,
		`[]`,
		`{"address":1}`,
		`{"address":"a"}`,
		`{"args":[1]}`,
		`{"address":"/a","args":[{}]}`,
		`{"address":"/a","args":[[1]]}`,
		"/a\x00\x00,\x00\x00\x00",
		`{"address":"/a"}garbage`,
		`{"address":"/a"}{"address":"/b"}`,
		`{"address":"/a"}}`,
	} {
		if m, err := (JSONCodec{}).Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%q) = %v, want error", raw, m)
		}
	}
}

func FuzzBinaryCodec(f *testing.F) {
	for _, tc := range messageTestCases {
		f.Add(tc.raw)
	}
	for _, tc := range malformedMessages {
		f.Add(tc.raw)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		codec := BinaryCodec{}
		msg, err := codec.Decode(data)
		if err != nil {
			return
		}

		dataNew, err := codec.Encode(msg)
		if err != nil {
			t.Fatalf("Encode(): err != nil on decoded message %#v: %v", msg, err)
		}

		msg, err = codec.Decode(dataNew)
		if err != nil {
			t.Fatalf("Decode(): err != nil on encoded message %#v: %v", msg, err)
		}

		dataNew2, err := codec.Encode(msg)
		if err != nil {
			t.Fatalf("Encode(): err != nil on twice decoded message %#v: %v", msg, err)
		}

		if !reflect.DeepEqual(dataNew, dataNew2) {
			t.Fatalf("dataNew != dataNew2: dataNew: %q\ndataNew2: %q\nmessage: %v\n", dataNew, dataNew2, msg)
		}
	})
}

func BenchmarkJSONCodecEncode(b *testing.B) {
	var data []byte
	b.ReportAllocs()
	for n := 0; n < b.N; n++ {
		data, _ = JSONCodec{}.Encode(temp)
	}
	result = data
}
