package sim

// Envelope is one in-flight VSR message between two simulated replicas.
type Envelope struct {
	From, To int
	Payload  any
}

// Tamperer mutates a payload in place to simulate byzantine-lite message
// corruption (spec §4.5's "byzantine-lite message tampering"). Returning
// false leaves the payload untouched (used when a type doesn't have an
// obvious single field to flip).
type Tamperer func(payload any) (tampered any, ok bool)

// Network is the simulator's fully-controlled transport: every message
// passes through Send, which the fault profile can drop, delay, reorder
// (by assigning a randomized extra delay — the event queue's tick+seq
// ordering then does the reordering), partition away, or tamper with,
// all driven off the simulation's own RNG stream so two runs of the same
// seed make the identical set of decisions.
type Network struct {
	profile   FaultProfile
	rng       *RNG
	queue     *eventQueue
	partition map[[2]int]bool
	tamperer  Tamperer
	coverage  *Coverage
}

func newNetwork(profile FaultProfile, rng *RNG, queue *eventQueue, tamperer Tamperer, coverage *Coverage) *Network {
	return &Network{profile: profile, rng: rng, queue: queue, partition: map[[2]int]bool{}, tamperer: tamperer, coverage: coverage}
}

// Partition cuts (or restores, with cut=false) delivery between from and
// to in both directions.
func (n *Network) Partition(from, to int, cut bool) {
	n.partition[[2]int{from, to}] = cut
	n.partition[[2]int{to, from}] = cut
}

// Send schedules payload for delivery from -> to at some tick >= now,
// subject to the fault profile. It returns false if the message was
// dropped or the link is partitioned (nothing is scheduled in that
// case).
func (n *Network) Send(now Tick, from, to int, payload any) bool {
	if n.partition[[2]int{from, to}] {
		n.coverage.Hit(FaultPartitionDrop)
		return false
	}
	if n.rng.Chance(n.profile.PacketDropProbability) {
		n.coverage.Hit(FaultPacketDrop)
		return false
	}
	if n.tamperer != nil && n.rng.Chance(n.profile.TamperProbability) {
		if tampered, ok := n.tamperer(payload); ok {
			payload = tampered
			n.coverage.Hit(FaultByzantineTamper)
		}
	}

	delay := Tick(0)
	if n.profile.MaxNetworkDelay > 0 {
		delay = Tick(n.rng.Intn(int(n.profile.MaxNetworkDelay) + 1))
		if delay > 0 {
			n.coverage.Hit(FaultNetworkDelay)
		}
	}
	if n.rng.Chance(n.profile.ReorderProbability) {
		// widen the delay spread so a second, independently-delayed
		// message can legitimately land ahead of this one in the queue.
		delay += Tick(n.rng.Intn(int(n.profile.MaxNetworkDelay) + 1))
		n.coverage.Hit(FaultReorder)
	}

	n.queue.Schedule(&Event{
		At:      now + delay,
		Kind:    EventDeliverMessage,
		Replica: to,
		Payload: Envelope{From: from, To: to, Payload: payload},
	})
	return true
}
