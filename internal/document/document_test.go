package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/confref/internal/store"
)

const sampleYAML = `mqtt:
  driver: mosquitto
  ip: "{{db.host}}::{{db.port}}"
db:
  host: 10.0.0.1
  port: 5432
  ssl: true
  timeout: 2.5
  password: ~
  replicas:
    - a
    - b
`

func TestDecodeYAMLPreservesOrderAndTypes(t *testing.T) {
	t.Parallel()

	tree, err := DecodeYAML([]byte(sampleYAML))
	require.NoError(t, err)
	require.Equal(t, []string{"mqtt", "db"}, tree.Keys())

	db, ok := tree.Lookup("db")
	require.True(t, ok)
	require.Equal(t, []string{"host", "port", "ssl", "timeout", "password", "replicas"}, db.(*store.Tree).Keys())

	v, _ := tree.Get("db.host")
	require.Equal(t, store.String("10.0.0.1"), v)
	v, _ = tree.Get("db.port")
	require.Equal(t, store.Int(5432), v)
	v, _ = tree.Get("db.ssl")
	require.Equal(t, store.Bool(true), v)
	v, _ = tree.Get("db.timeout")
	require.Equal(t, store.Float(2.5), v)
	v, _ = tree.Get("db.password")
	require.Equal(t, store.Null(), v)
	v, _ = tree.Get("db.replicas")
	require.True(t, v.(*store.Tree).IsList())
	v, _ = tree.Get("mqtt.ip")
	require.Equal(t, store.String("{{db.host}}::{{db.port}}"), v)
}

func TestDecodeYAMLRejectsNonMappingRoots(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{"- a\n- b\n", "just text\n", "a: [\n"} {
		_, err := DecodeYAML([]byte(doc))
		require.ErrorIs(t, err, store.ErrInvalidDocument, "document %q", doc)
	}
}

func TestDecodeYAMLEmptyDocument(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{"", "---\n", "~\n"} {
		tree, err := DecodeYAML([]byte(doc))
		require.NoError(t, err)
		require.Zero(t, tree.Len())
	}
}

func TestDecodeYAMLAnchorsAndMerges(t *testing.T) {
	t.Parallel()

	doc := `base: &base
  driver: mqtt5
  retries: 3
profile:
  <<: *base
  retries: 5
copy: *base
`
	tree, err := DecodeYAML([]byte(doc))
	require.NoError(t, err)

	v, _ := tree.Get("profile.driver")
	require.Equal(t, store.String("mqtt5"), v)
	v, _ = tree.Get("profile.retries")
	require.Equal(t, store.Int(5), v)
	v, _ = tree.Get("copy.retries")
	require.Equal(t, store.Int(3), v)
}

func laughsDocument(levels int) string {
	var b strings.Builder
	b.WriteString("l0: &l0 \"lol\"\n")
	for i := 1; i <= levels; i++ {
		prev := fmt.Sprintf("*l%d", i-1)
		refs := strings.TrimSuffix(strings.Repeat(prev+", ", 10), ", ")
		fmt.Fprintf(&b, "l%d: &l%d [%s]\n", i, i, refs)
	}
	return b.String()
}

func TestDecodeYAMLRejectsExcessiveAliasing(t *testing.T) {
	for _, levels := range []int{6, 9} {
		doc := laughsDocument(levels)
		require.Less(t, len(doc), 1024)

		_, err := DecodeYAML([]byte(doc))
		require.ErrorIs(t, err, store.ErrInvalidDocument, "levels=%d", levels)
		require.ErrorContains(t, err, "excessive aliasing")
	}
}

func TestDecodeYAMLAllowsModestAliasing(t *testing.T) {
	tree, err := DecodeYAML([]byte(laughsDocument(2)))
	require.NoError(t, err)

	v, ok := tree.Get("l2.9.9")
	require.True(t, ok)
	require.Equal(t, store.String("lol"), v)
}

func TestNodeBudgetScalesWithInput(t *testing.T) {
	require.Equal(t, minNodeBudget, nodeBudget(0))
	require.Equal(t, 1<<15*nodesPerByte, nodeBudget(1<<15))
	require.Equal(t, maxNodeBudget, nodeBudget(1<<30))
}

func TestEncodeYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	tree, err := DecodeYAML([]byte(sampleYAML))
	require.NoError(t, err)

	out, err := EncodeYAML(tree)
	require.NoError(t, err)

	again, err := DecodeYAML(out)
	require.NoError(t, err)

	want, err := EncodeJSON(tree)
	require.NoError(t, err)
	got, err := EncodeJSON(again)
	require.NoError(t, err)
	require.Equal(t, string(want), string(got))
}

func TestEncodeYAMLQuotesAmbiguousStrings(t *testing.T) {
	t.Parallel()

	tree := store.NewTree()
	tree.Put("flag", store.String("true"))
	tree.Put("port", store.String("8080"))

	out, err := EncodeYAML(tree)
	require.NoError(t, err)

	again, err := DecodeYAML(out)
	require.NoError(t, err)
	v, _ := again.Get("flag")
	require.Equal(t, store.String("true"), v)
	v, _ = again.Get("port")
	require.Equal(t, store.String("8080"), v)
}

func TestEncodeJSON(t *testing.T) {
	t.Parallel()

	tree := store.NewTree()
	tree.Put("b", store.Int(1))
	tree.Put("a", store.NewList(store.String("x")))

	out, err := EncodeJSON(tree)
	require.NoError(t, err)
	require.Equal(t, "{\n  \"b\": 1,\n  \"a\": [\n    \"x\"\n  ]\n}\n", string(out))
}

func TestFormatDetection(t *testing.T) {
	t.Parallel()

	require.Equal(t, FormatJSON, FormatFromPath("conf/app.JSON"))
	require.Equal(t, FormatYAML, FormatFromPath("conf/app.yml"))
	require.Equal(t, FormatYAML, FormatFromContentType("application/yaml; charset=utf-8"))
	require.Equal(t, FormatJSON, FormatFromContentType(""))

	f, err := ParseFormat("YML")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, f)

	_, err = ParseFormat("toml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestOpenStoreChoosesBackend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "app.json")
	yamlPath := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"a":"x","b":"{{a}}"}`), 0o600))
	require.NoError(t, os.WriteFile(yamlPath, []byte("a: x\nb: '{{a}}'\n"), 0o600))

	s, format, err := OpenStore(jsonPath)
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)
	require.IsType(t, &store.JSONStore{}, s)

	s, format, err = OpenStore(yamlPath)
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)
	require.IsType(t, &store.MemoryStore{}, s)

	tree, err := LoadFile(yamlPath)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, tree.Keys())

	_, _, err = OpenStore(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
