package sim

// FaultPoint names one place the simulator can inject trouble, used for
// both driving the injection decision and coverage accounting (spec
// §4.5's "fault points" coverage dimension). It is a named string type
// whose values are the constants below, matched to spec §4.5's explicit
// list; scenario files do not name fault points, they only set the
// FaultProfile probabilities.
type FaultPoint string

const (
	FaultPacketDrop      FaultPoint = "PacketDrop"
	FaultNetworkDelay    FaultPoint = "NetworkDelay"
	FaultReorder         FaultPoint = "Reorder"
	FaultPartitionDrop   FaultPoint = "PartitionDrop"
	FaultByzantineTamper FaultPoint = "ByzantineTamper"
	FaultTornWrite       FaultPoint = "TornWrite"
	FaultFsyncLoss       FaultPoint = "FsyncLoss"
	FaultBitFlip         FaultPoint = "BitFlip"
	FaultReplicaCrash    FaultPoint = "ReplicaCrash"
	FaultClockSkew       FaultPoint = "ClockSkew"
	FaultMixedVersion    FaultPoint = "MixedVersion"
)

// AllFaultPoints is the full closed set, used to compute coverage
// denominators and to list which fault points a run hit or missed.
var AllFaultPoints = []FaultPoint{
	FaultPacketDrop, FaultNetworkDelay, FaultReorder, FaultPartitionDrop,
	FaultByzantineTamper, FaultTornWrite, FaultFsyncLoss, FaultBitFlip,
	FaultReplicaCrash, FaultClockSkew, FaultMixedVersion,
}

// FaultProfile configures how aggressively the simulator injects each
// kind of fault. Probabilities are per-opportunity (e.g. per message
// sent, per record written), not per-tick, so a scenario's fault
// intensity doesn't implicitly depend on how busy a run happens to be.
type FaultProfile struct {
	PacketDropProbability float64 `yaml:"packet_drop_probability"`
	ReorderProbability    float64 `yaml:"reorder_probability"`
	TamperProbability     float64 `yaml:"tamper_probability"`
	MaxNetworkDelay       uint64  `yaml:"max_network_delay_ticks"`

	TornWriteProbability  float64 `yaml:"torn_write_probability"`
	FsyncLossProbability  float64 `yaml:"fsync_loss_probability"`
	BitFlipProbability    float64 `yaml:"bit_flip_probability"`
	CrashAtTick           Tick    `yaml:"crash_at_tick"`
	CrashReplica          int     `yaml:"crash_replica"`
	ClockSkewMaxTicks     uint64  `yaml:"clock_skew_max_ticks"`
}

// NoFaults returns a profile that injects nothing, useful as a baseline
// determinism check (spec §8 S8) before layering faults on top.
func NoFaults() FaultProfile { return FaultProfile{} }
