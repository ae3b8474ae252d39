package discovery

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestDescribe_SplitsClusterTag(t *testing.T) {
    b := Banner{Name: "n1", TXT: map[string]string{ClusterKey: "default", "role": "web"}}
    d := Describe(b, "10.0.0.1", 7000)
    assert.Equal(t, "n1", d.PeerID)
    assert.Equal(t, "default", d.ClusterTag)
    assert.Equal(t, map[string]string{"role": "web"}, d.Metadata)
    assert.Equal(t, 7000, d.Port)
}

func TestDescriptorEqual(t *testing.T) {
    a := Descriptor{PeerID: "n1", ClusterTag: "c", Address: "a", Port: 1, Metadata: map[string]string{"k": "v"}}
    b := a
    b.Metadata = map[string]string{"k": "v"}
    assert.True(t, a.Equal(b))
    b.Metadata["k"] = "w"
    assert.False(t, a.Equal(b))
    b = a
    b.Port = 2
    assert.False(t, a.Equal(b))
}

func TestTXTRoundTrip(t *testing.T) {
    txt := map[string]string{"cluster": "default", "a": "x=y", "flag": ""}
    list := TXTList(txt)
    assert.Equal(t, []string{"a=x=y", "cluster=default", "flag="}, list)
    assert.Equal(t, txt, ParseTXT(list))
    assert.Nil(t, ParseTXT(nil))
    assert.Equal(t, map[string]string{"bare": ""}, ParseTXT([]string{"bare", "=skip"}))
}

func TestBannerClone(t *testing.T) {
    b := Banner{Name: "n", TXT: map[string]string{"k": "v"}}
    c := b.Clone()
    c.TXT["k"] = "changed"
    assert.Equal(t, "v", b.TXT["k"])
}
