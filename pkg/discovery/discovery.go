package discovery

// Discovery abstracts how gossip seed addresses are obtained for the ring
// the gossip status provider joins.
type Discovery interface {
    Seeds() []string
}
