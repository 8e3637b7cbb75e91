package scaler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"
)

func quantities(cpu, memory string) Resources {
	return Resources{
		CPU:    resource.MustParse(cpu),
		Memory: resource.MustParse(memory),
	}
}

func workerNode(id string) Node {
	return Node{
		ID:          id,
		Capacity:    quantities("2000m", "4Gi"),
		Allocatable: quantities("1800m", "3584Mi"),
	}
}

func idleNode(id string, capturedAt time.Time, idleFor time.Duration) Node {
	node := workerNode(id)
	since := capturedAt.Add(-idleFor)
	node.IdleSince = &since

	return node
}

func TestEngineDecide_ScaleUp(t *testing.T) {
	t.Parallel()

	capturedAt := time.Now()

	t.Run("pending pod too big for any node triggers scale-up with margin", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(10 * time.Minute)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes:      []Node{workerNode("n1"), workerNode("n2"), workerNode("n3")},
			PendingPods: []PendingPod{
				{ID: "default/big", Requests: quantities("2000m", "1Gi")},
			},
		}
		pool := PoolState{CurrentSize: 3, MinSize: 1, MaxSize: 10, OverProvision: 1}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleUp, decision.Reason)
		// One node of average capacity covers the demand, plus the margin.
		require.Equal(t, 5, decision.Target)
		require.Equal(t, []string{"default/big"}, decision.PendingPodIDs)
	})

	t.Run("pods that first-fit do not trigger scale-up", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(10 * time.Minute)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes:      []Node{workerNode("n1"), workerNode("n2")},
			PendingPods: []PendingPod{
				{ID: "default/a", Requests: quantities("500m", "512Mi")},
				{ID: "default/b", Requests: quantities("500m", "512Mi")},
			},
		}
		pool := PoolState{CurrentSize: 2, MinSize: 1, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonNoOp, decision.Reason)
		require.Equal(t, 2, decision.Target)
	})

	t.Run("known utilization shrinks free capacity", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(10 * time.Minute)

		busy := workerNode("n1")
		util := quantities("1500m", "512Mi")
		busy.Utilization = &util

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes:      []Node{busy},
			PendingPods: []PendingPod{
				{ID: "default/a", Requests: quantities("500m", "256Mi")},
			},
		}
		pool := PoolState{CurrentSize: 1, MinSize: 1, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleUp, decision.Reason)
		require.Equal(t, 2, decision.Target)
	})

	t.Run("cordoned nodes are ignored when fitting", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(10 * time.Minute)

		cordoned := workerNode("n1")
		cordoned.Unschedulable = true

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes:      []Node{cordoned},
			PendingPods: []PendingPod{
				{ID: "default/a", Requests: quantities("500m", "256Mi")},
			},
		}
		pool := PoolState{CurrentSize: 1, MinSize: 1, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleUp, decision.Reason)
	})

	t.Run("target is clamped to the maximum", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(10 * time.Minute)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes:      []Node{workerNode("n1")},
			PendingPods: []PendingPod{
				{ID: "default/a", Requests: quantities("4000m", "1Gi")},
				{ID: "default/b", Requests: quantities("4000m", "1Gi")},
				{ID: "default/c", Requests: quantities("4000m", "1Gi")},
			},
		}
		pool := PoolState{CurrentSize: 1, MinSize: 1, MaxSize: 3}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleUp, decision.Reason)
		require.Equal(t, 3, decision.Target)
	})

	t.Run("already at the maximum yields no-op", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(10 * time.Minute)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes:      []Node{workerNode("n1")},
			PendingPods: []PendingPod{
				{ID: "default/a", Requests: quantities("4000m", "1Gi")},
			},
		}
		pool := PoolState{CurrentSize: 3, MinSize: 1, MaxSize: 3}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonNoOp, decision.Reason)
		require.Equal(t, 3, decision.Target)
	})

	t.Run("empty cluster assumes one node per pending pod", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(10 * time.Minute)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			PendingPods: []PendingPod{
				{ID: "default/a", Requests: quantities("500m", "256Mi")},
				{ID: "default/b", Requests: quantities("500m", "256Mi")},
			},
		}
		pool := PoolState{CurrentSize: 0, MinSize: 0, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleUp, decision.Reason)
		require.Equal(t, 2, decision.Target)
	})
}

func TestEngineDecide_ScaleDown(t *testing.T) {
	t.Parallel()

	capturedAt := time.Now()
	idleThreshold := 10 * time.Minute

	t.Run("long-idle nodes shrink the pool down to the minimum", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(idleThreshold)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes: []Node{
				workerNode("n1"),
				idleNode("n2", capturedAt, 30*time.Minute),
				workerNode("n3"),
				idleNode("n4", capturedAt, 15*time.Minute),
				workerNode("n5"),
			},
		}
		pool := PoolState{CurrentSize: 5, MinSize: 2, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleDown, decision.Reason)
		require.Equal(t, 3, decision.Target)
		// Longest idle first.
		require.Equal(t, []string{"n2", "n4"}, decision.IdleNodeIDs)
	})

	t.Run("minimum size wins over idle nodes", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(idleThreshold)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes: []Node{
				idleNode("n1", capturedAt, 30*time.Minute),
				idleNode("n2", capturedAt, 30*time.Minute),
			},
		}
		pool := PoolState{CurrentSize: 2, MinSize: 2, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonNoOp, decision.Reason)
		require.Equal(t, 2, decision.Target)
	})

	t.Run("idle removal is clamped to the minimum", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(idleThreshold)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes: []Node{
				idleNode("n1", capturedAt, 30*time.Minute),
				idleNode("n2", capturedAt, 25*time.Minute),
				idleNode("n3", capturedAt, 20*time.Minute),
			},
		}
		pool := PoolState{CurrentSize: 3, MinSize: 2, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleDown, decision.Reason)
		require.Equal(t, 2, decision.Target)
		require.Equal(t, []string{"n1"}, decision.IdleNodeIDs)
	})

	t.Run("nodes idle for less than the threshold are kept", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(idleThreshold)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes: []Node{
				workerNode("n1"),
				idleNode("n2", capturedAt, 5*time.Minute),
			},
		}
		pool := PoolState{CurrentSize: 2, MinSize: 1, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonNoOp, decision.Reason)
	})

	t.Run("a node with workload is never removed", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(idleThreshold)

		busy := idleNode("n1", capturedAt, 30*time.Minute)
		busy.HasWorkload = true

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes:      []Node{busy, workerNode("n2")},
		}
		pool := PoolState{CurrentSize: 2, MinSize: 1, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonNoOp, decision.Reason)
	})

	t.Run("unknown idle time never counts", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(idleThreshold)

		snapshot := &ClusterSnapshot{
			CapturedAt: capturedAt,
			Nodes:      []Node{workerNode("n1"), workerNode("n2")},
		}
		pool := PoolState{CurrentSize: 2, MinSize: 1, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonNoOp, decision.Reason)
	})
}

func TestEngineDecide_BoundsDrift(t *testing.T) {
	t.Parallel()

	engine := NewEngine(10 * time.Minute)

	t.Run("pool below the minimum is corrected upward", func(t *testing.T) {
		t.Parallel()

		snapshot := &ClusterSnapshot{CapturedAt: time.Now()}
		pool := PoolState{CurrentSize: 0, MinSize: 2, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleUp, decision.Reason)
		require.Equal(t, 2, decision.Target)
	})

	t.Run("pool above the maximum is corrected downward", func(t *testing.T) {
		t.Parallel()

		snapshot := &ClusterSnapshot{CapturedAt: time.Now()}
		pool := PoolState{CurrentSize: 12, MinSize: 2, MaxSize: 10}

		decision, err := engine.Decide(snapshot, pool)

		require.NoError(t, err)
		require.Equal(t, ReasonScaleDown, decision.Reason)
		require.Equal(t, 10, decision.Target)
	})
}

func TestNodesNeeded(t *testing.T) {
	t.Parallel()

	nodes := []Node{workerNode("n1"), workerNode("n2")}

	tests := []struct {
		name           string
		requiredCPU    int64
		requiredMemory int64
		want           int
	}{
		{name: "cpu bound", requiredCPU: 4100, requiredMemory: 0, want: 3},
		{name: "memory bound", requiredCPU: 100, requiredMemory: 9 << 30, want: 3},
		{name: "exact fit", requiredCPU: 4000, requiredMemory: 0, want: 2},
		{name: "no demand", requiredCPU: 0, requiredMemory: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, nodesNeeded(nodes, tt.requiredCPU, tt.requiredMemory, 1))
		})
	}
}
