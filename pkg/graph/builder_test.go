package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudseed-io/seedctl/pkg/deployment"
	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// loadDeployment is a test helper that parses a YAML deployment.
func loadDeployment(t *testing.T, yaml string) *deployment.Deployment {
	t.Helper()
	dep, err := deployment.LoadYAML([]byte(yaml), "/tmp/test/test.deploy.yml")
	if err != nil {
		t.Fatalf("failed to load deployment: %v", err)
	}
	return dep
}

func TestBuild_ReferenceEdges(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: store
    kind: storage/account
    attributes:
      account_name: appdata${{ identifier.suffix }}
    outputs: [host]
  - name: container
    kind: storage/container
    attributes:
      account: ${{ resources.store.host }}
    outputs: [name]
`)

	g, err := Build(dep)
	require.NoError(t, err)

	container := g.GetNode("container")
	require.NotNil(t, container)
	assert.Equal(t, []string{"store"}, container.DependsOn)
	assert.Equal(t, []string{"container"}, g.GetNode("store").DependedOnBy)
}

func TestBuild_ExplicitDependency(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: network
    kind: network/vnet
    attributes: {}
  - name: vm
    kind: compute/vm
    depends_on: [network]
    attributes: {}
`)

	g, err := Build(dep)
	require.NoError(t, err)
	assert.Equal(t, []string{"network"}, g.GetNode("vm").DependsOn)
}

func TestBuild_DuplicateEdgesCollapse(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: store
    kind: storage/account
    attributes: {}
    outputs: [host, access_key]
  - name: app
    kind: compute/function
    depends_on: [store]
    attributes:
      url: https://${{ resources.store.host }}/
      key: ${{ resources.store.access_key }}
`)

	g, err := Build(dep)
	require.NoError(t, err)
	assert.Equal(t, []string{"store"}, g.GetNode("app").DependsOn, "three edges to the same producer collapse to one")
}

func TestBuild_ReferenceToUndeclaredOutput(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: store
    kind: storage/account
    attributes: {}
    outputs: [host]
  - name: app
    kind: compute/function
    attributes:
      key: ${{ resources.store.access_key }}
`)

	_, err := Build(dep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnresolved))
	assert.Contains(t, err.Error(), "access_key")
}

func TestBuild_ReferenceToUnknownResource(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: app
    kind: compute/function
    attributes:
      url: ${{ resources.ghost.host }}
`)

	_, err := Build(dep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnresolved))
}

func TestBuild_SelfReference(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: app
    kind: compute/function
    attributes:
      url: ${{ resources.app.host }}
    outputs: [host]
`)

	_, err := Build(dep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCycle))
}

func TestBuild_CycleDetected(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: a
    kind: k
    attributes:
      in: ${{ resources.c.out }}
    outputs: [out]
  - name: b
    kind: k
    attributes:
      in: ${{ resources.a.out }}
    outputs: [out]
  - name: c
    kind: k
    attributes:
      in: ${{ resources.b.out }}
    outputs: [out]
`)

	_, err := Build(dep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCycle))

	// The error names every participant
	for _, name := range []string{"a", "b", "c"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestBuild_CycleViaExplicitDependency(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: a
    kind: k
    depends_on: [b]
    attributes: {}
  - name: b
    kind: k
    depends_on: [a]
    attributes: {}
`)

	_, err := Build(dep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCycle))
}

func TestBuild_IndependentBranchesAcyclic(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: a
    kind: k
    attributes: {}
    outputs: [out]
  - name: b
    kind: k
    attributes:
      in: ${{ resources.a.out }}
  - name: c
    kind: k
    attributes: {}
`)

	g, err := Build(dep)
	require.NoError(t, err)
	assert.NoError(t, g.CheckAcyclic())
	assert.Len(t, g.Nodes, 3)
}

func TestGraph_SortedIsDeclarationOrder(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: z
    kind: k
    attributes: {}
  - name: a
    kind: k
    attributes: {}
  - name: m
    kind: k
    attributes: {}
`)

	g, err := Build(dep)
	require.NoError(t, err)

	var names []string
	for _, n := range g.Sorted() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names)
}

func TestBuild_DeploymentOutputUndeclaredResource(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: store
    kind: storage/account
    attributes: {}
    outputs: [host]
outputs:
  good: ${{ resources.store.host }}
  ghost: ${{ resources.ghost.endpoint }}
`)

	_, err := Build(dep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnresolved))
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuild_DeploymentOutputUndeclaredAttribute(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: store
    kind: storage/account
    attributes:
      account_name: appdata
    outputs: [host]
outputs:
  leak: ${{ resources.store.account_name }}
`)

	_, err := Build(dep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnresolved))
	assert.Contains(t, err.Error(), "account_name")
}

func TestBuild_DeploymentOutputsValid(t *testing.T) {
	dep := loadDeployment(t, `
name: test
resources:
  - name: store
    kind: storage/account
    attributes: {}
    outputs: [host]
outputs:
  endpoint: https://${{ resources.store.host }}/data
`)

	_, err := Build(dep)
	require.NoError(t, err)
}
