package hooks

import "sort"

// Name identifies an extension point. The set of names is closed.
type Name string

const (
    ProviderCreateBefore  Name = "provider.create.before"
    ProviderCreateFactory Name = "provider.create.factory" // reserved for provider layers
    ProviderCreateAfter   Name = "provider.create.after"
    ProviderAnnounce      Name = "provider.announce"
    ProviderUp            Name = "provider.up"
    ProviderDown          Name = "provider.down"
    ProviderDestroyBefore Name = "provider.destroy.before"
    ProviderDestroyAfter  Name = "provider.destroy.after"
    ServiceUp             Name = "service.up"
    ServiceDown           Name = "service.down"
    ConsumerGetBefore     Name = "consumer.get.before"
    ConsumerGetAfter      Name = "consumer.get.after"
    ConsumerReleaseBefore Name = "consumer.release.before"
    ConsumerReleaseAfter  Name = "consumer.release.after"
    ConsumerWriteBefore   Name = "consumer.work.write.before"
    ConsumerWriteAfter    Name = "consumer.work.write.after"
    WorkReadBefore        Name = "work.read.before"
    WorkReadAfter         Name = "work.read.after"
)

var known = map[Name]struct{}{
    ProviderCreateBefore: {}, ProviderCreateFactory: {}, ProviderCreateAfter: {},
    ProviderAnnounce: {}, ProviderUp: {}, ProviderDown: {},
    ProviderDestroyBefore: {}, ProviderDestroyAfter: {},
    ServiceUp: {}, ServiceDown: {},
    ConsumerGetBefore: {}, ConsumerGetAfter: {},
    ConsumerReleaseBefore: {}, ConsumerReleaseAfter: {},
    ConsumerWriteBefore: {}, ConsumerWriteAfter: {},
    WorkReadBefore: {}, WorkReadAfter: {},
}

// Known reports whether n is one of the defined extension points.
func Known(n Name) bool { _, ok := known[n]; return ok }

// Names returns every extension point in lexical order.
func Names() []Name {
    out := make([]Name, 0, len(known))
    for n := range known { out = append(out, n) }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

func (n Name) String() string { return string(n) }
