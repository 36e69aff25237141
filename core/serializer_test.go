package core_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/0xRadioAc7iv/go-daybreak/core"
)

type stringerKey struct{ id int }

func (k stringerKey) String() string { return "user:" + string(rune('0'+k.id)) }

func TestTaggedRoundTrip(t *testing.T) {
	s := core.NewTagged()

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"bytes", []byte{0, 1, 2}, []byte{0, 1, 2}},
		{"string", "daybreak", "daybreak"},
		{"empty string", "", ""},
		{"json object", map[string]any{"name": "x", "tags": []any{"a", "b"}}, map[string]any{"name": "x", "tags": []any{"a", "b"}}},
		{"json number", 42, 42.0},
		{"json bool", true, true},
		{"json null", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := s.Dump(tt.value)
			require.NoError(t, err)

			got, err := s.Load(data)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTaggedProto(t *testing.T) {
	s := core.NewTagged()

	for _, msg := range []proto.Message{
		wrapperspb.String("hello"),
		durationpb.New(3 * time.Second),
	} {
		data, err := s.Dump(msg)
		require.NoError(t, err)
		require.Equal(t, byte('p'), data[0])

		got, err := s.Load(data)
		require.NoError(t, err)
		require.True(t, proto.Equal(msg, got.(proto.Message)))
	}
}

func TestTaggedCompression(t *testing.T) {
	s := core.NewTagged()
	big := strings.Repeat("daybreak ", 2000)

	data, err := s.Dump(big)
	require.NoError(t, err)
	require.Equal(t, byte('z'), data[0])
	require.Less(t, len(data), len(big))

	got, err := s.Load(data)
	require.NoError(t, err)
	require.Equal(t, big, got)

	s.CompressAbove = 0
	data, err = s.Dump(big)
	require.NoError(t, err)
	require.Equal(t, byte('s'), data[0])
}

func TestTaggedKinds(t *testing.T) {
	s := &core.Tagged{Kinds: core.KindBytes | core.KindString}

	_, err := s.Dump("ok")
	require.NoError(t, err)
	_, err = s.Dump([]byte("ok"))
	require.NoError(t, err)

	_, err = s.Dump(map[string]any{"a": 1})
	require.ErrorIs(t, err, core.ErrUnsupportedValueType)
	_, err = s.Dump(wrapperspb.Int64(1))
	require.ErrorIs(t, err, core.ErrUnsupportedValueType)

	_, err = core.NewTagged().Dump(make(chan int))
	require.ErrorIs(t, err, core.ErrUnsupportedValueType)
}

func TestTaggedRejectsUnknownTag(t *testing.T) {
	_, err := core.NewTagged().Load([]byte("x???"))
	require.ErrorIs(t, err, core.ErrUnsupportedValueType)

	_, err = core.NewTagged().Load(nil)
	require.ErrorIs(t, err, core.ErrUnsupportedValueType)
}

func TestEncodeKey(t *testing.T) {
	s := core.NewTagged()

	tests := []struct {
		key  any
		want string
	}{
		{"plain", "plain"},
		{[]byte("raw"), "raw"},
		{7, "7"},
		{int64(-3), "-3"},
		{uint8(255), "255"},
		{stringerKey{id: 4}, "user:4"},
	}
	for _, tt := range tests {
		got, err := s.EncodeKey(tt.key)
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}

	_, err := s.EncodeKey(3.5)
	require.ErrorIs(t, err, core.ErrUnsupportedValueType)
}

func TestRaw(t *testing.T) {
	var s core.Raw

	data, err := s.Dump("value")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), data)

	got, err := s.Load(data)
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	_, err = s.Dump(1)
	require.ErrorIs(t, err, core.ErrUnsupportedValueType)

	key, err := s.EncodeKey([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "k", key)
}
