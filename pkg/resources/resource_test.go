package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/pkg/errors"
)

func testDocument(kind Kind, name, subnet string) *Document {
	return &Document{
		Kind: kind,
		Name: name,
		Metadata: Metadata{
			Labels: map[string]string{"env": "prod"},
		},
		Spec: map[string]any{"subnet": subnet},
	}
}

func TestDocumentValidate(t *testing.T) {
	doc := testDocument(KindVPC, "prod", "10.0.0.0/16")
	require.NoError(t, doc.Validate())

	missing := &Document{Kind: KindVPC}
	err := missing.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	traversal := &Document{Kind: KindVPC, Name: "../escape"}
	assert.Error(t, traversal.Validate())
}

func TestDocumentPath(t *testing.T) {
	doc := testDocument(KindVPC, "prod", "10.0.0.0/16")
	assert.Equal(t, "managed/vpcs/prod.yaml", doc.Path())

	fw := testDocument(KindFirewallRule, "allow-ssh", "")
	assert.Equal(t, "managed/firewallrules/allow-ssh.yaml", fw.Path())
}

func TestUnmarshalRoundTrip(t *testing.T) {
	doc := testDocument(KindSubnet, "dmz", "10.0.1.0/24")

	data, err := doc.Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, doc.Ref(), parsed.Ref())
	assert.Equal(t, Hash(doc), Hash(parsed))
}

func TestUnmarshalAllSplitsMultiDocumentStream(t *testing.T) {
	stream := []byte(`kind: VPC
name: prod
spec:
  subnet: 10.0.0.0/16
---
kind: Subnet
name: dmz
spec:
  subnet: 10.0.1.0/24
---
`)

	docs, err := UnmarshalAll(stream)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "VPC/prod", docs[0].Ref().String())
	assert.Equal(t, "Subnet/dmz", docs[1].Ref().String())
}

func TestUnmarshalAllSeparatorWithComment(t *testing.T) {
	stream := []byte(`--- # network tier
kind: VPC
name: prod
spec:
  subnet: 10.0.0.0/16
--- # edge tier
kind: Subnet
name: dmz
spec:
  subnet: 10.0.1.0/24
`)

	docs, err := UnmarshalAll(stream)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "VPC/prod", docs[0].Ref().String())
	assert.Equal(t, "Subnet/dmz", docs[1].Ref().String())
}

func TestUnmarshalAllSkipsEmptyDocuments(t *testing.T) {
	stream := []byte("---\n---\nkind: VPC\nname: prod\nspec:\n  subnet: 10.0.0.0/16\n")

	docs, err := UnmarshalAll(stream)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "VPC/prod", docs[0].Ref().String())
}

func TestCopyIsDeep(t *testing.T) {
	doc := testDocument(KindVPC, "prod", "10.0.0.0/16")
	doc.Spec["nested"] = map[string]any{"cidr_blocks": []any{"a", "b"}}

	cp := doc.Copy()
	cp.Spec["subnet"] = "10.9.0.0/16"
	cp.Spec["nested"].(map[string]any)["cidr_blocks"] = []any{"c"}
	cp.Metadata.Labels["env"] = "dev"

	assert.Equal(t, "10.0.0.0/16", doc.Spec["subnet"])
	assert.Equal(t, []any{"a", "b"}, doc.Spec["nested"].(map[string]any)["cidr_blocks"])
	assert.Equal(t, "prod", doc.Metadata.Labels["env"])
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("VPC/prod")
	require.NoError(t, err)
	assert.Equal(t, Ref{Kind: KindVPC, Name: "prod"}, ref)

	_, err = ParseRef("nameonly")
	assert.Error(t, err)
}
