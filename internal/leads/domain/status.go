package domain

// Coarse lead status. The fine-grained position inside the closing workflow
// lives in Stage; this is the funnel-level rollup reporting reads.
const (
	StatusNew       = "new"
	StatusWorking   = "working"
	StatusConverted = "converted"
	StatusLost      = "lost"
)

// StatusForStage returns the coarse status implied by a stage, or empty when
// the stage does not force one.
func StatusForStage(stage Stage) string {
	switch stage {
	case StageEnrolled:
		return StatusConverted
	case StageLostNotInterested, StageLostUnreachable:
		return StatusLost
	default:
		return ""
	}
}
