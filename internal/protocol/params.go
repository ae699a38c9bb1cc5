package protocol

// MaxStreamsMultiplier is the slack the peer gets for jumping ahead in the
// stream ID space. A peer may leave up to this many times the configured
// maximum of incoming streams in the "available, but never opened" state
// before we reject further jumps.
const MaxStreamsMultiplier = 10

// MaxGSOBatchSize is the maximum number of same-sized UDP datagrams the
// kernel accepts in a single generic segmentation offload write.
const MaxGSOBatchSize = 45

// MinGSOBatchSize is the segment limit for degenerate (1 or 2 byte) segment
// sizes. Empirically derived kernel limitation, not a protocol constant.
const MinGSOBatchSize = 16

// PathChallengePayloadSize is the size of the PATH_CHALLENGE payload, in bytes.
const PathChallengePayloadSize = 8

// MaxPathValidationRetries is the number of times a PATH_CHALLENGE is
// retransmitted before path validation is declared failed.
const MaxPathValidationRetries = 3

// MaxOutstandingPathChallenges bounds the PATH_CHALLENGE payload history.
// Only the most recent few challenges are plausible matches for a response.
const MaxOutstandingPathChallenges = 3

// PacketReorderingThreshold is the default number of packet numbers a packet
// may be reordered by before it is declared lost.
const PacketReorderingThreshold = 3

// MaxPacketReorderingThreshold caps the adaptively raised packet reordering
// threshold.
const MaxPacketReorderingThreshold = 256
