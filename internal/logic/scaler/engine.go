package scaler

import (
	"fmt"
	"sort"
	"time"
)

// Engine computes scaling decisions. Decide is a pure function: no side
// effects, deterministic given identical inputs.
type Engine struct {
	idleThreshold time.Duration
}

// NewEngine creates a decision engine. idleThreshold is how long a node must
// stay below the low-water utilization mark before it becomes a scale-down
// candidate.
func NewEngine(idleThreshold time.Duration) *Engine {
	return &Engine{
		idleThreshold: idleThreshold,
	}
}

// Decide maps a cluster snapshot and the current pool state to a target pool
// size. The target is always clamped to [MinSize, MaxSize]. A node actively
// running non-daemon pods is never selected for removal; the engine only marks
// candidates, eviction happens before the pool shrinks.
func (e *Engine) Decide(snapshot *ClusterSnapshot, pool PoolState) (ScalingDecision, error) {
	unfit := unschedulable(snapshot)
	if len(unfit) > 0 {
		return e.scaleUp(snapshot, pool, unfit)
	}

	idle := e.idleNodes(snapshot)
	if len(idle) > 0 {
		return e.scaleDown(pool, idle)
	}

	return decision(ScalingDecision{
		Target: pool.CurrentSize,
		Reason: ReasonNoOp,
	}, pool)
}

func (e *Engine) scaleUp(snapshot *ClusterSnapshot, pool PoolState, unfit []PendingPod) (ScalingDecision, error) {
	var requiredCPU, requiredMemory int64

	podIDs := make([]string, 0, len(unfit))
	for i := range unfit {
		requiredCPU += unfit[i].Requests.CPU.MilliValue()
		requiredMemory += unfit[i].Requests.Memory.Value()
		podIDs = append(podIDs, unfit[i].ID)
	}

	needed := nodesNeeded(snapshot.Nodes, requiredCPU, requiredMemory, len(unfit))

	target := pool.CurrentSize + needed + pool.OverProvision
	if target > pool.MaxSize {
		target = pool.MaxSize
	}

	if target <= pool.CurrentSize {
		// Already at the ceiling; nothing left to add.
		return decision(ScalingDecision{
			Target: pool.CurrentSize,
			Reason: ReasonNoOp,
		}, pool)
	}

	return decision(ScalingDecision{
		Target:        target,
		Reason:        ReasonScaleUp,
		PendingPodIDs: podIDs,
	}, pool)
}

func (e *Engine) scaleDown(pool PoolState, idle []Node) (ScalingDecision, error) {
	removable := len(idle)
	if pool.CurrentSize-removable < pool.MinSize {
		removable = pool.CurrentSize - pool.MinSize
	}

	if removable <= 0 {
		// Clamped to the floor; keep the idle nodes.
		return decision(ScalingDecision{
			Target: pool.CurrentSize,
			Reason: ReasonNoOp,
		}, pool)
	}

	nodeIDs := make([]string, 0, removable)
	for i := 0; i < removable; i++ {
		nodeIDs = append(nodeIDs, idle[i].ID)
	}

	return decision(ScalingDecision{
		Target:      pool.CurrentSize - removable,
		Reason:      ReasonScaleDown,
		IdleNodeIDs: nodeIDs,
	}, pool)
}

// unschedulable returns the pending pods that do not first-fit on the
// snapshot's nodes. Free capacity per node is allocatable minus known
// utilization; unknown utilization leaves allocatable untouched so missing
// metrics never inflate demand. Exactness is not required, over-provisioning
// absorbs the slack.
func unschedulable(snapshot *ClusterSnapshot) []PendingPod {
	type free struct {
		cpu    int64
		memory int64
	}

	frees := make([]free, 0, len(snapshot.Nodes))

	for i := range snapshot.Nodes {
		node := &snapshot.Nodes[i]
		if node.Unschedulable {
			continue
		}

		f := free{
			cpu:    node.Allocatable.CPU.MilliValue(),
			memory: node.Allocatable.Memory.Value(),
		}

		if node.Utilization != nil {
			f.cpu -= node.Utilization.CPU.MilliValue()
			f.memory -= node.Utilization.Memory.Value()

			if f.cpu < 0 {
				f.cpu = 0
			}

			if f.memory < 0 {
				f.memory = 0
			}
		}

		frees = append(frees, f)
	}

	var unfit []PendingPod

	for i := range snapshot.PendingPods {
		pod := &snapshot.PendingPods[i]
		cpu := pod.Requests.CPU.MilliValue()
		memory := pod.Requests.Memory.Value()

		placed := false

		for j := range frees {
			if frees[j].cpu >= cpu && frees[j].memory >= memory {
				frees[j].cpu -= cpu
				frees[j].memory -= memory
				placed = true

				break
			}
		}

		if !placed {
			unfit = append(unfit, *pod)
		}
	}

	return unfit
}

// nodesNeeded converts unmet resource demand into a node count using the
// average node capacity. With no nodes to average over, one node per unfit
// pod is assumed.
func nodesNeeded(nodes []Node, requiredCPU, requiredMemory int64, unfitCount int) int {
	if len(nodes) == 0 {
		return unfitCount
	}

	var totalCPU, totalMemory int64
	for i := range nodes {
		totalCPU += nodes[i].Capacity.CPU.MilliValue()
		totalMemory += nodes[i].Capacity.Memory.Value()
	}

	avgCPU := totalCPU / int64(len(nodes))
	avgMemory := totalMemory / int64(len(nodes))

	if avgCPU <= 0 && avgMemory <= 0 {
		return unfitCount
	}

	byCPU := ceilDiv(requiredCPU, avgCPU)
	byMemory := ceilDiv(requiredMemory, avgMemory)

	if byCPU > byMemory {
		return byCPU
	}

	return byMemory
}

func ceilDiv(n, d int64) int {
	if d <= 0 || n <= 0 {
		return 0
	}

	return int((n + d - 1) / d)
}

// idleNodes returns the scale-down candidates, longest idle first. A node
// qualifies only when its utilization has been below the low-water mark for
// at least the idle threshold and it runs no non-daemon pods.
func (e *Engine) idleNodes(snapshot *ClusterSnapshot) []Node {
	var idle []Node

	for i := range snapshot.Nodes {
		node := snapshot.Nodes[i]
		if node.HasWorkload || node.IdleSince == nil {
			continue
		}

		if snapshot.CapturedAt.Sub(*node.IdleSince) >= e.idleThreshold {
			idle = append(idle, node)
		}
	}

	sort.Slice(idle, func(i, j int) bool {
		return idle[i].IdleSince.Before(*idle[j].IdleSince)
	})

	return idle
}

// decision clamps and validates before returning. A target outside bounds
// after clamping is a programming defect.
func decision(d ScalingDecision, pool PoolState) (ScalingDecision, error) {
	if d.Target < pool.MinSize {
		d.Target = pool.MinSize
	}

	if d.Target > pool.MaxSize {
		d.Target = pool.MaxSize
	}

	if d.Target < pool.MinSize || d.Target > pool.MaxSize {
		return ScalingDecision{}, fmt.Errorf(
			"%w: target %d outside [%d, %d]",
			ErrDecide, d.Target, pool.MinSize, pool.MaxSize,
		)
	}

	if d.Reason != ReasonNoOp && d.Target == pool.CurrentSize {
		d.Reason = ReasonNoOp
		d.PendingPodIDs = nil
		d.IdleNodeIDs = nil
	}

	// A pool that drifted outside its bounds is corrected even without demand.
	if d.Reason == ReasonNoOp && d.Target != pool.CurrentSize {
		if d.Target > pool.CurrentSize {
			d.Reason = ReasonScaleUp
		} else {
			d.Reason = ReasonScaleDown
		}
	}

	return d, nil
}
