package schema

import "vsme-guru/internal/models"

// RequireSubsidiaries reports an empty subsidiary list when the company says
// it has subsidiaries. The issue is attached to the list, not the flag.
func RequireSubsidiaries(doc map[string]interface{}) []Issue {
	if flag, _ := doc["hasSubsidiaries"].(string); flag != string(models.SubsidiariesYes) {
		return nil
	}
	if list, ok := doc["subsidiaries"].([]interface{}); ok && len(list) > 0 {
		return nil
	}
	return []Issue{{Path: "subsidiaries", Message: MsgSubsidiariesRequired}}
}

// RequireCompleteInitiatives reports a single aggregate issue when any active
// initiative lacks a description, goal or responsible person.
func RequireCompleteInitiatives(doc map[string]interface{}) []Issue {
	initiatives, ok := doc["initiatives"].(map[string]interface{})
	if !ok {
		return nil
	}
	for _, raw := range initiatives {
		initiative, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if active, _ := initiative["isActive"].(bool); !active {
			continue
		}
		for _, field := range []string{"description", "goal", "responsiblePerson"} {
			if value, _ := initiative[field].(string); value == "" {
				return []Issue{{Path: "initiatives", Message: MsgInitiativeIncomplete}}
			}
		}
	}
	return nil
}
