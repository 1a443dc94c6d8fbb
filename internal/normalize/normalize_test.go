package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNameStripsSuffixAndPunctuation(t *testing.T) {
	t.Parallel()

	require.Equal(t, "acme software", Name("Acme Software, LLC"))
	require.Equal(t, "acme software", Name("Acme Software LLC"))
	require.Equal(t, "acme software", Name("ACME SOFTWARE INC."))
	require.Equal(t, Name("Acme Software, LLC"), Name("Acme Software LLC"))
}

func TestNameKeepsSuffixOnlyNames(t *testing.T) {
	t.Parallel()

	// A name that is nothing but a suffix token must not collapse to "".
	require.Equal(t, "ltd", Name("Ltd"))
}

func TestNameFoldsDiacritics(t *testing.T) {
	t.Parallel()

	require.Equal(t, "societe generale", Name("Société Générale"))
	require.Equal(t, "muller and sohne", Name("Müller & Söhne GmbH"))
}

func TestTaxID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "DE123456789", TaxID("de 123-456.789"))
	require.Equal(t, "", TaxID("Unknown"))
	require.Equal(t, "", TaxID("n/a"))
	require.Equal(t, "", TaxID(""))
}

func TestDomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "aws.com", Domain("@aws.com"))
	require.Equal(t, "aws.com", Domain("www.aws.com"))
	require.True(t, GenericDomain("@gmail.com"))
	require.False(t, GenericDomain("aws.com"))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, Similarity("Acme Software, LLC", "ACME Software Inc"))
	require.Greater(t, Similarity("Amazon Web Srvcs", "Amazon Web Services"), 0.7)
	require.Less(t, Similarity("Acme Software", "Globex Industrial"), 0.4)
	require.Equal(t, 0.0, Similarity("", "Acme"))
}
