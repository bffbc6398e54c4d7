package leave

// =============================================================================
// WORKFLOW CONFIGURATION
// =============================================================================

// WorkflowStep is one approval level.
type WorkflowStep struct {
	Level        int    `json:"level"`
	Name         string `json:"name"`
	ApproverRole string `json:"approverRole"`
}

// TitleRule caps the number of approval levels for a job title.
type TitleRule struct {
	JobTitle string `json:"jobTitle"`
	MaxLevel int    `json:"maxLevel"`
}

// WorkflowGroup is the approval chain assigned to a set of users.
type WorkflowGroup struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Steps      []WorkflowStep `json:"steps"`
	TitleRules []TitleRule    `json:"titleRules"`
}

// TotalStepsFor returns how many approvals a request by u needs: every step
// of the group, capped by the first title rule matching u's job title.
func (g WorkflowGroup) TotalStepsFor(u User) int {
	total := len(g.Steps)
	for _, rule := range g.TitleRules {
		if rule.JobTitle == u.JobTitle {
			if rule.MaxLevel < total {
				total = rule.MaxLevel
			}
			break
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// SelectGroup picks u's workflow group: the one matching u.WorkflowGroupID,
// else the first configured group.
func SelectGroup(groups []WorkflowGroup, u User) (WorkflowGroup, bool) {
	for _, g := range groups {
		if g.ID == u.WorkflowGroupID {
			return g, true
		}
	}
	if len(groups) > 0 {
		return groups[0], true
	}
	return WorkflowGroup{}, false
}
