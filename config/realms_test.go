package wampConfig_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wampConfig "github.com/wamp3hub/wampytester/config"
)

const objectShape = `{"realms":{"r1":{"router_url":"ws://127.0.0.1:60001","topics":["t.a"]},"r2":{"router_url":"tcp://127.0.0.1:8081","topics":["t.b","t.c"]}}}`

const arrayShape = `{"realms":[
	{"realm":"r1","router_url":"ws://127.0.0.1:60001","topics":["t.a"]},
	{"realm":"r2","router_url":"tcp://127.0.0.1:8081","topics":["t.b","t.c"]}
]}`

func TestParseRealms(t *testing.T) {
	t.Run("Case: Object shape", func(t *testing.T) {
		realms, e := wampConfig.ParseRealms([]byte(objectShape))
		require.NoError(t, e)
		assert.Equal(t, []string{"r1", "r2"}, realms.Names())
		r1, found := realms.Lookup("r1")
		require.True(t, found)
		assert.Equal(t, "ws://127.0.0.1:60001", r1.RouterURL)
		assert.Equal(t, []string{"t.a"}, r1.Topics)
	})

	t.Run("Case: Array shape normalizes to object shape", func(t *testing.T) {
		fromArray, e := wampConfig.ParseRealms([]byte(arrayShape))
		require.NoError(t, e)
		fromObject, e := wampConfig.ParseRealms([]byte(objectShape))
		require.NoError(t, e)
		assert.Equal(t, fromObject, fromArray)
	})

	t.Run("Case: Duplicate names collapse", func(t *testing.T) {
		realms, e := wampConfig.ParseRealms([]byte(`{"realms":[
			{"realm":"r1","router_url":"ws://a:1","topics":["t.a"]},
			{"realm":"r1","router_url":"ws://b:2","topics":["t.a","t.b"]}
		]}`))
		require.NoError(t, e)
		require.Len(t, realms.Realms, 1)
		assert.Equal(t, "ws://b:2", realms.Realms["r1"].RouterURL)
		assert.Equal(t, []string{"t.a", "t.b"}, realms.Realms["r1"].Topics)
	})

	testCases := map[string]string{
		"Not JSON":         `{"realms":`,
		"Missing realms":   `{}`,
		"Scalar realms":    `{"realms": 5}`,
		"Empty name":       `{"realms":[{"realm":"","router_url":"ws://a:1"}]}`,
		"Bad scheme":       `{"realms":{"r1":{"router_url":"http://a:1","topics":[]}}}`,
		"Empty topic name": `{"realms":{"r1":{"router_url":"ws://a:1","topics":[""]}}}`,
	}
	for name, data := range testCases {
		t.Run("Case: "+name, func(t *testing.T) {
			_, e := wampConfig.ParseRealms([]byte(data))
			assert.ErrorIs(t, e, wampConfig.ErrorInvalidRealms)
		})
	}
}

func TestRealmsRoundTrip(t *testing.T) {
	for name, data := range map[string]string{"object": objectShape, "array": arrayShape} {
		t.Run("Case: "+name, func(t *testing.T) {
			loaded, e := wampConfig.ParseRealms([]byte(data))
			require.NoError(t, e)

			path := filepath.Join(t.TempDir(), "realms.json")
			require.NoError(t, loaded.Save(path))

			reloaded, e := wampConfig.LoadRealms(path)
			require.NoError(t, e)
			assert.Equal(t, loaded, reloaded)

			canonical, e := reloaded.Marshal()
			require.NoError(t, e)
			assert.Contains(t, string(canonical), `"r1": {`)
		})
	}
}

func TestRealmsSchema(t *testing.T) {
	schema := wampConfig.RealmsSchema()
	data, e := schema.MarshalJSON()
	require.NoError(t, e)
	assert.Contains(t, string(data), "router_url")
	assert.Contains(t, string(data), "realms")
}
