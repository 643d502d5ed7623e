package engine

import (
	"fmt"

	"github.com/shaiso/Portfolium/internal/domain"
)

// CheckConflicts ищет в этапе пишущую задачу, которая делит portfolio_id
// с любой другой задачей этого же этапа. Задачи внутри этапа выполняются
// одновременно, поэтому такой этап не имеет определённого результата.
//
// Задачи без portfolio_id (lookup_*) и задачи с неизвестным инструментом
// не участвуют в проверке.
func CheckConflicts(stageIndex int, stage domain.Stage, source ToolSource) error {
	type user struct {
		task  int
		tool  domain.ToolName
		write bool
	}
	byPortfolio := make(map[string][]user)
	var order []string

	for i, task := range stage.Tasks {
		id := task.Params.PortfolioID()
		if id == "" {
			continue
		}
		tool, err := source.Lookup(task.Tool)
		if err != nil {
			continue
		}
		if _, seen := byPortfolio[id]; !seen {
			order = append(order, id)
		}
		byPortfolio[id] = append(byPortfolio[id], user{task: i, tool: task.Tool, write: tool.Access().IsWrite()})
	}

	for _, id := range order {
		users := byPortfolio[id]
		if len(users) < 2 {
			continue
		}
		for _, u := range users {
			if !u.write {
				continue
			}
			other := users[0]
			if other.task == u.task {
				other = users[1]
			}
			return NewValidationError(stageIndex, u.task, "portfolio_id",
				fmt.Sprintf("%s writes portfolio %s while task %d (%s) uses it in the same stage",
					u.tool, id, other.task, other.tool),
				ErrStageConflict)
		}
	}

	return nil
}
