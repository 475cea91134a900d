package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

const validYAML = `
name: azuregoat
variables:
  region: eastus
resources:
  - name: store
    kind: storage/account
    attributes:
      account_name: appdata${{ identifier.suffix }}
      location: ${{ variables.region }}
    outputs: [host, access_key]
  - name: container
    kind: storage/container
    depends_on: [store]
    attributes:
      container_name: prod-data
      account: ${{ resources.store.host }}
    outputs: [name, token]
outputs:
  endpoint_url: https://${{ resources.store.host }}/${{ resources.container.name }}
`

func TestLoadYAML_Valid(t *testing.T) {
	dep, err := LoadYAML([]byte(validYAML), "test.deploy.yml")
	require.NoError(t, err)

	assert.Equal(t, "azuregoat", dep.Name)
	assert.Equal(t, "eastus", dep.Variables["region"])
	require.Len(t, dep.Resources, 2)

	store := dep.Resources[0]
	assert.Equal(t, "storage/account", store.Kind)
	assert.True(t, store.DeclaresOutput("host"))
	assert.False(t, store.DeclaresOutput("location"))

	container := dep.Resources[1]
	assert.Equal(t, []string{"store"}, container.DependsOn)

	assert.Contains(t, dep.Outputs, "endpoint_url")
}

func TestLoadYAML_UnknownField(t *testing.T) {
	_, err := LoadYAML([]byte("name: x\nbogus: y\nresources: [{name: a, kind: k}]"), "test.yml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestValidate_DuplicateName(t *testing.T) {
	dep := &Deployment{
		Name: "dup",
		Resources: []Resource{
			{Name: "a", Kind: "k"},
			{Name: "a", Kind: "k"},
		},
	}

	err := Validate(dep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestValidate_UndeclaredExplicitDependency(t *testing.T) {
	dep := &Deployment{
		Name: "d",
		Resources: []Resource{
			{Name: "a", Kind: "k", DependsOn: []string{"ghost"}},
		},
	}

	err := Validate(dep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidate_MalformedExpression(t *testing.T) {
	dep := &Deployment{
		Name: "d",
		Resources: []Resource{
			{Name: "a", Kind: "k", Attributes: map[string]string{"x": "${{ unterminated"}},
		},
	}

	assert.Error(t, Validate(dep))
}

func TestValidate_EmptyKind(t *testing.T) {
	dep := &Deployment{
		Name:      "d",
		Resources: []Resource{{Name: "a"}},
	}

	assert.Error(t, Validate(dep))
}

const validHCL = `
name = "azuregoat"

variable "region" {
  default = "eastus"
}

resource "storage/account" "store" {
  attributes = {
    account_name = "appdata$${{ identifier.suffix }}"
    location     = "$${{ variables.region }}"
  }
  outputs = ["host", "access_key"]
}

resource "storage/container" "container" {
  depends_on = ["store"]
  attributes = {
    container_name = "prod-data"
    account        = "$${{ resources.store.host }}"
  }
  outputs = ["name", "token"]
}

output "endpoint_url" {
  value = "https://$${{ resources.store.host }}/$${{ resources.container.name }}"
}
`

func TestLoadHCL_Valid(t *testing.T) {
	dep, err := LoadHCL([]byte(validHCL), "test.deploy.hcl")
	require.NoError(t, err)

	assert.Equal(t, "azuregoat", dep.Name)
	assert.Equal(t, "eastus", dep.Variables["region"])
	require.Len(t, dep.Resources, 2)

	// HCL's $${{ escaping must come out as plain engine markers
	assert.Equal(t, "appdata${{ identifier.suffix }}", dep.Resources[0].Attributes["account_name"])
	assert.Equal(t, []string{"store"}, dep.Resources[1].DependsOn)
	assert.Equal(t,
		"https://${{ resources.store.host }}/${{ resources.container.name }}",
		dep.Outputs["endpoint_url"])
}

func TestLoadHCL_Invalid(t *testing.T) {
	_, err := LoadHCL([]byte("resource \"k\" {"), "broken.hcl")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestDeployment_Kinds(t *testing.T) {
	dep, err := LoadYAML([]byte(validYAML), "test.yml")
	require.NoError(t, err)

	assert.Equal(t, []string{"storage/account", "storage/container"}, dep.Kinds())
}
