package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		cmd, err := Decode([]byte(`{"sessionKey":"abc","userId":5}`))
		require.NoError(t, err)

		key, ok := cmd.String("sessionKey")
		require.True(t, ok)
		require.Equal(t, "abc", key)

		id, ok := cmd.Int64("userId")
		require.True(t, ok)
		require.Equal(t, int64(5), id)
	})

	t.Run("not_json", func(t *testing.T) {
		_, err := Decode([]byte(`not json at all`))
		require.Error(t, err)
	})

	t.Run("json_but_not_object", func(t *testing.T) {
		_, err := Decode([]byte(`[1,2,3]`))
		require.Error(t, err)
	})

	t.Run("null_object", func(t *testing.T) {
		_, err := Decode([]byte(`null`))
		require.Error(t, err)
	})
}

func TestAccessors(t *testing.T) {
	cmd := Command{
		"name":     "chat-group-42",
		"userId":   float64(7),
		"fraction": float64(1.5),
		"flag":     true,
	}

	t.Run("string_present", func(t *testing.T) {
		v, ok := cmd.String("name")
		require.True(t, ok)
		require.Equal(t, "chat-group-42", v)
	})

	t.Run("string_absent", func(t *testing.T) {
		_, ok := cmd.String("missing")
		require.False(t, ok)
	})

	t.Run("string_wrong_type", func(t *testing.T) {
		_, ok := cmd.String("flag")
		require.False(t, ok)
	})

	t.Run("int64_from_float", func(t *testing.T) {
		v, ok := cmd.Int64("userId")
		require.True(t, ok)
		require.Equal(t, int64(7), v)
	})

	t.Run("int64_rejects_fraction", func(t *testing.T) {
		_, ok := cmd.Int64("fraction")
		require.False(t, ok)
	})

	t.Run("int64_absent", func(t *testing.T) {
		_, ok := cmd.Int64("missing")
		require.False(t, ok)
	})
}
