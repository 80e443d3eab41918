package cache

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestKeyBuilder_OptionOrderIrrelevant(t *testing.T) {
	k1, err := NewKeyBuilder().
		URL("https://a.test").Method("GET").Version("v1").Namespace("fetch").
		Options(map[string]string{"b": "2", "a": "1"}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	k2, err := NewKeyBuilder().
		URL("https://a.test").Method("GET").Version("v1").Namespace("fetch").
		Option("a", "1").Option("b", "2").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if k1 != k2 {
		t.Errorf("keys differ for the same options:\n  k1=%s\n  k2=%s", k1, k2)
	}
	if !strings.HasPrefix(k1, "fetch:v1:") {
		t.Errorf("key %q should start with fetch:v1:", k1)
	}
}

func TestKeyBuilder_Permutations(t *testing.T) {
	opts := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}, {"e", "5"}}
	rng := rand.New(rand.NewPCG(1, 2))

	var want string
	for i := 0; i < 50; i++ {
		perm := rng.Perm(len(opts))
		b := NewKeyBuilder().URL("https://a.test/x").Method("POST").Namespace("render")
		for _, j := range perm {
			b.Option(opts[j][0], opts[j][1])
		}
		got, err := b.Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if want == "" {
			want = got
			continue
		}
		if got != want {
			t.Fatalf("permutation %v produced %s, want %s", perm, got, want)
		}
	}
}

func TestKeyBuilder_Format(t *testing.T) {
	key, err := NewKeyBuilder().URL("https://a.test").Method("GET").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	parsed, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey(%q) error = %v", key, err)
	}
	if parsed.Namespace != DefaultNamespace || parsed.Version != DefaultVersion {
		t.Errorf("parsed = %+v, want default namespace and version", parsed)
	}
	if len(parsed.Digest) != DigestLength {
		t.Errorf("digest length = %d, want %d", len(parsed.Digest), DigestLength)
	}
	if strings.ToLower(parsed.Digest) != parsed.Digest {
		t.Errorf("digest %q should be lowercase hex", parsed.Digest)
	}
	if NamespaceOf(key) != DefaultNamespace {
		t.Errorf("NamespaceOf(%q) = %q", key, NamespaceOf(key))
	}
}

func TestKeyBuilder_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		b     *KeyBuilder
		field string
	}{
		{"no url", NewKeyBuilder().Method("GET"), "url"},
		{"no method", NewKeyBuilder().URL("https://a.test"), "method"},
		{"neither", NewKeyBuilder(), "url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("err = %v, want ErrMissingField", err)
			}
			var mfe *MissingFieldError
			if !errors.As(err, &mfe) || mfe.Field != tt.field {
				t.Errorf("missing field = %v, want %q", err, tt.field)
			}
		})
	}
}

func TestKeyBuilder_InvalidKeyParts(t *testing.T) {
	tests := []struct {
		name string
		b    *KeyBuilder
	}{
		{"empty namespace", NewKeyBuilder().Namespace("")},
		{"colon in namespace", NewKeyBuilder().Namespace("a:b")},
		{"empty version", NewKeyBuilder().Version("")},
		{"newline in version", NewKeyBuilder().Version("v1\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.URL("https://a.test").Method("GET").Build()
			if !errors.Is(err, ErrInvalidKeyPart) {
				t.Fatalf("err = %v, want ErrInvalidKeyPart", err)
			}
		})
	}
}

func TestKeyBuilder_OptionOverwrite(t *testing.T) {
	k1, _ := NewKeyBuilder().URL("u").Method("GET").Option("a", "1").Option("a", "2").Build()
	k2, _ := NewKeyBuilder().URL("u").Method("GET").Option("a", "2").Build()
	if k1 != k2 {
		t.Error("a later Option call should overwrite the earlier value")
	}
}

type keyInput struct {
	url, method, version, namespace string
	options                         map[string]string
}

func (in keyInput) build(t *testing.T) string {
	t.Helper()
	key, err := NewKeyBuilder().
		URL(in.url).Method(in.method).Version(in.version).Namespace(in.namespace).
		Options(in.options).
		Build()
	if err != nil {
		t.Fatalf("Build(%+v) error = %v", in, err)
	}
	return key
}

func randString(rng *rand.Rand, alphabet string) string {
	n := 1 + rng.IntN(12)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[rng.IntN(len(alphabet))])
	}
	return sb.String()
}

// Each sample changes exactly one field and expects a different key.
func TestKeyBuilder_SingleFieldChangeAltersKey(t *testing.T) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789/._-=&?"
	rng := rand.New(rand.NewPCG(42, 7))

	for i := 0; i < 2000; i++ {
		base := keyInput{
			url:       "https://" + randString(rng, alphabet),
			method:    []string{"GET", "POST", "HEAD"}[rng.IntN(3)],
			version:   "v" + randString(rng, "0123456789"),
			namespace: randString(rng, "abcdefghijklmnopqrstuvwxyz"),
			options: map[string]string{
				"a": randString(rng, alphabet),
				"b": randString(rng, alphabet),
			},
		}
		variant := base
		variant.options = map[string]string{"a": base.options["a"], "b": base.options["b"]}

		var field string
		switch rng.IntN(5) {
		case 0:
			field = "url"
			variant.url += "x"
		case 1:
			field = "method"
			variant.method += "X"
		case 2:
			field = "version"
			variant.version += "1"
		case 3:
			field = "namespace"
			variant.namespace += "n"
		default:
			field = "option"
			variant.options["b"] += "!"
		}

		if base.build(t) == variant.build(t) {
			t.Fatalf("sample %d: changing %s did not change the key (%+v)", i, field, base)
		}
	}
}

func TestKeyBuilder_DelimiterInjection(t *testing.T) {
	// Without length prefixes these two would share a preimage.
	k1, _ := NewKeyBuilder().URL("u").Method("GET").Option("a", "1\x1fb").Build()
	k2, _ := NewKeyBuilder().URL("u").Method("GET").Option("a", "1").Option("b", "").Build()
	if k1 == k2 {
		t.Error("option values containing the separator must not collide")
	}

	k3, _ := NewKeyBuilder().URL("ab").Method("c").Build()
	k4, _ := NewKeyBuilder().URL("a").Method("bc").Build()
	if k3 == k4 {
		t.Error("shifting bytes between fields must change the key")
	}
}

func TestParseKey_Invalid(t *testing.T) {
	tests := []string{
		"",
		"fetch:v1",
		"fetch:v1:abc",
		":v1:" + strings.Repeat("a", DigestLength),
		"fetch:v1:" + strings.Repeat("z", DigestLength),
		"fetch:v1:extra:" + strings.Repeat("a", DigestLength),
	}
	for _, key := range tests {
		t.Run(fmt.Sprintf("%q", key), func(t *testing.T) {
			if _, err := ParseKey(key); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("ParseKey(%q) err = %v, want ErrInvalidKey", key, err)
			}
		})
	}
}
