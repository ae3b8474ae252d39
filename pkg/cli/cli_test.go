package cli

import (
    "bytes"
    "context"
    "testing"

    "github.com/hashicorp/go-hclog"
    "github.com/spf13/cobra"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-mesh/pkg/admin"
    "github.com/amirimatin/go-mesh/pkg/mesh"
)

type stubNode struct{ published []mesh.Message }

func (s *stubNode) Status() mesh.Status { return mesh.Status{ID: "n1", State: "joined"} }
func (s *stubNode) Publish(ctx context.Context, ch, payload string) error {
    s.published = append(s.published, mesh.Message{Channel: ch, Payload: payload})
    return nil
}

func startAdmin(t *testing.T, node admin.Node) string {
    t.Helper()
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)
    srv := admin.NewServer("127.0.0.1:0", hclog.NewNullLogger())
    require.NoError(t, srv.Start(ctx, node))
    return srv.Addr()
}

func execute(t *testing.T, args ...string) (string, error) {
    t.Helper()
    root := &cobra.Command{Use: "meshctl", SilenceUsage: true, SilenceErrors: true}
    AddAll(root)
    var out bytes.Buffer
    root.SetOut(&out)
    root.SetErr(&out)
    root.SetArgs(args)
    err := root.Execute()
    return out.String(), err
}

func TestStatusCommand(t *testing.T) {
    addr := startAdmin(t, &stubNode{})
    out, err := execute(t, "status", "--addr", addr)
    require.NoError(t, err)
    assert.Contains(t, out, `"id":"n1"`)
}

func TestPublishCommand(t *testing.T) {
    node := &stubNode{}
    addr := startAdmin(t, node)
    out, err := execute(t, "publish", "--addr", addr, "chat", "hello")
    require.NoError(t, err)
    assert.Equal(t, "ok\n", out)
    assert.Equal(t, []mesh.Message{{Channel: "chat", Payload: "hello"}}, node.published)

    _, err = execute(t, "publish", "--addr", addr, "only-one-arg")
    require.Error(t, err)
}

func TestRunFlagsHaveConfigKeys(t *testing.T) {
    cmd := NewRunCmd()
    for name := range runFlagKeys {
        assert.NotNil(t, cmd.Flags().Lookup(name), name)
    }
}
