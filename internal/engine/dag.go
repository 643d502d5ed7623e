package engine

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Portfolium/internal/domain"
)

// DAGTask - задача плана в DAG-форме.
//
//	{"id": "t2", "depends_on": ["t1"], "tool_name": "lookup_sectors", "parameters": {"asset_ids": "$previous"}}
//
// "$previous" в DAG-форме означает выход предыдущего этапа, как и в обычном плане.
// Поэтому depends_on такой задачи должен совпадать с составом этого этапа.
type DAGTask struct {
	ID        string   `json:"id"`
	DependsOn []string `json:"depends_on,omitempty"`
	Task      domain.Task
}

// UnmarshalJSON принимает поля задачи на верхнем уровне и depends как синоним depends_on.
func (t *DAGTask) UnmarshalJSON(data []byte) error {
	var head struct {
		ID        string   `json:"id"`
		DependsOn []string `json:"depends_on"`
		Depends   []string `json:"depends"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &t.Task); err != nil {
		return err
	}

	t.ID = head.ID
	t.DependsOn = head.DependsOn
	if len(t.DependsOn) == 0 {
		t.DependsOn = head.Depends
	}
	return nil
}

// Node - узел в DAG.
type Node struct {
	// Task - задача из плана.
	Task *DAGTask

	// ID - идентификатор узла.
	ID string

	// Index - позиция задачи в исходном списке; задаёт порядок внутри слоя.
	Index int

	// InDegree - количество входящих рёбер (зависимостей).
	InDegree int

	// Depth - номер слоя: 0 для задач без зависимостей.
	Depth int

	// DependsOn - узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents - узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG - направленный ациклический граф задач.
type DAG struct {
	// Nodes - все узлы графа (taskID → Node).
	Nodes map[string]*Node

	// RootNodes - узлы без зависимостей, в исходном порядке.
	RootNodes []*Node

	// Order - топологически отсортированный список узлов.
	Order []*Node

	nodes []*Node
}

// BuildDAG строит DAG из списка задач.
func BuildDAG(tasks []DAGTask) (*DAG, error) {
	dag := &DAG{
		Nodes: make(map[string]*Node, len(tasks)),
		nodes: make([]*Node, 0, len(tasks)),
	}

	// Первый проход: создаём все узлы
	for i := range tasks {
		if err := dag.addNode(&tasks[i], i); err != nil {
			return nil, err
		}
	}

	// Второй проход: связываем узлы по зависимостям
	for _, node := range dag.nodes {
		if err := dag.linkDependencies(node); err != nil {
			return nil, err
		}
	}

	dag.findRootNodes()

	// Проверяем на циклы и строим топологический порядок
	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

func (d *DAG) addNode(task *DAGTask, index int) error {
	if task.ID == "" {
		return NewValidationError(-1, index, "id", fmt.Sprintf("task %d has empty ID", index), ErrEmptyTaskID)
	}
	if _, exists := d.Nodes[task.ID]; exists {
		return NewValidationError(-1, index, "id",
			fmt.Sprintf("duplicate task ID: %s", task.ID), ErrDuplicateTaskID)
	}

	node := &Node{
		Task:  task,
		ID:    task.ID,
		Index: index,
	}
	d.Nodes[task.ID] = node
	d.nodes = append(d.nodes, node)
	return nil
}

func (d *DAG) linkDependencies(node *Node) error {
	for _, depID := range node.Task.DependsOn {
		if depID == node.ID {
			return NewValidationError(-1, node.Index, "depends_on",
				fmt.Sprintf("task %s depends on itself", node.ID), ErrSelfDependency)
		}

		depNode, exists := d.Nodes[depID]
		if !exists {
			return NewValidationError(-1, node.Index, "depends_on",
				fmt.Sprintf("task %s depends on unknown task: %s", node.ID, depID), ErrMissingDependency)
		}

		d.addEdge(depNode, node)
	}
	return nil
}

// addEdge добавляет ребро между узлами.
// Повторное ребро игнорируется, чтобы не учитывать InDegree дважды.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Node, 0)
	for _, node := range d.nodes {
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана)
// и заодно вычисляет глубину каждого узла.
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for _, node := range d.nodes {
		inDegree[node.ID] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			if node.Depth+1 > dependent.Depth {
				dependent.Depth = node.Depth + 1
			}
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны - есть цикл
	if len(order) != len(d.nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.nodes)
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Layers раскладывает узлы по слоям: слой узла равен длине самого длинного
// пути к нему от корня. Внутри слоя сохраняется исходный порядок задач.
func (d *DAG) Layers() [][]*Node {
	depth := 0
	for _, node := range d.nodes {
		if node.Depth > depth {
			depth = node.Depth
		}
	}
	if len(d.nodes) == 0 {
		return nil
	}

	layers := make([][]*Node, depth+1)
	for _, node := range d.nodes {
		layers[node.Depth] = append(layers[node.Depth], node)
	}
	return layers
}

// LayerTasks строит план из задач с зависимостями:
// каждый слой DAG становится этапом.
func LayerTasks(tasks []DAGTask) (domain.Plan, error) {
	dag, err := BuildDAG(tasks)
	if err != nil {
		return domain.Plan{}, err
	}

	layers := dag.Layers()
	plan := domain.Plan{Stages: make([]domain.Stage, len(layers))}
	for i, layer := range layers {
		stage := domain.Stage{Tasks: make([]domain.Task, len(layer))}
		for j, node := range layer {
			if node.Task.Task.HasPlaceholder() {
				if err := checkPlaceholderDeps(layers, i, j); err != nil {
					return domain.Plan{}, err
				}
			}
			stage.Tasks[j] = node.Task.Task
		}
		plan.Stages[i] = stage
	}
	return plan, nil
}

// checkPlaceholderDeps проверяет, что "$previous" задачи layers[i][j] получит
// выход ровно её зависимостей: предыдущий этап должен состоять только из них.
func checkPlaceholderDeps(layers [][]*Node, i, j int) error {
	node := layers[i][j]

	deps := make(map[string]bool, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		deps[dep.ID] = true
	}
	if len(deps) == 0 {
		return NewValidationError(i, j, "depends_on",
			fmt.Sprintf("task %s uses %s but has no depends_on", node.ID, domain.PlaceholderToken),
			ErrPlaceholderDependency)
	}

	prev := layers[i-1]
	match := len(prev) == len(deps)
	var stageIDs []string
	for _, n := range prev {
		stageIDs = append(stageIDs, n.ID)
		if !deps[n.ID] {
			match = false
		}
	}
	if !match {
		return NewValidationError(i, j, "depends_on",
			fmt.Sprintf("task %s uses %s but depends on %v while the previous stage holds %v",
				node.ID, domain.PlaceholderToken, dependencyIDs(node), stageIDs),
			ErrPlaceholderDependency)
	}
	return nil
}

func dependencyIDs(node *Node) []string {
	ids := make([]string, len(node.DependsOn))
	for i, dep := range node.DependsOn {
		ids[i] = dep.ID
	}
	return ids
}
