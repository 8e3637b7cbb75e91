package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	policy "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/kubescaler/agentpool-autoscaler/internal/logic/scaler"
)

const (
	evictionKind       = "Eviction"
	evictionAPIVersion = "policy/v1"
)

// Adapter implements the observer and drainer ports on top of the Kubernetes
// API. All reads build one immutable ClusterSnapshot per call.
type Adapter struct {
	logger           *slog.Logger
	clientset        kubernetes.Interface
	metricsClientset metricsv.Interface
}

// New creates a Kubernetes adapter.
func New(
	logger *slog.Logger,
	clientset kubernetes.Interface,
	metricsClientset metricsv.Interface,
) *Adapter {
	return &Adapter{
		logger:           logger,
		clientset:        clientset,
		metricsClientset: metricsClientset,
	}
}

var (
	_ scaler.Observer = (*Adapter)(nil)
	_ scaler.Drainer  = (*Adapter)(nil)
)

// Observe captures a point-in-time view of the cluster: node inventory,
// unschedulable pending pods and per-node utilization. Missing utilization
// metrics are tolerated; the node is still counted with utilization unknown.
func (a *Adapter) Observe(ctx context.Context) (*scaler.ClusterSnapshot, error) {
	nodeList, err := a.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	podList, err := a.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	usage := a.nodeUsage(ctx)

	workload := make(map[string]bool, len(nodeList.Items))
	pending := make([]scaler.PendingPod, 0)

	for i := range podList.Items {
		pod := &podList.Items[i]

		if isPendingUnschedulable(pod) {
			pending = append(pending, toDomainPendingPod(pod))

			continue
		}

		if pod.Spec.NodeName != "" && isActiveWorkload(pod) {
			workload[pod.Spec.NodeName] = true
		}
	}

	snapshot := &scaler.ClusterSnapshot{
		CapturedAt:  time.Now(),
		Nodes:       make([]scaler.Node, 0, len(nodeList.Items)),
		PendingPods: pending,
	}

	for i := range nodeList.Items {
		node := &nodeList.Items[i]
		snapshot.Nodes = append(snapshot.Nodes, toDomainNode(node, usage[node.Name], workload[node.Name]))
	}

	return snapshot, nil
}

// nodeUsage fetches per-node utilization from the metrics API. Failures are
// logged and yield an empty map: nodes without data keep utilization unknown,
// which never counts as idle.
func (a *Adapter) nodeUsage(ctx context.Context) map[string]corev1.ResourceList {
	metricsList, err := a.metricsClientset.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		a.logger.WarnContext(ctx, "node metrics unavailable, utilization unknown", "reason", err)

		return nil
	}

	usage := make(map[string]corev1.ResourceList, len(metricsList.Items))
	for i := range metricsList.Items {
		usage[metricsList.Items[i].Name] = metricsList.Items[i].Usage
	}

	return usage
}

// CordonNode marks the node unschedulable so nothing new lands on it while it
// drains.
func (a *Adapter) CordonNode(ctx context.Context, nodeID string) error {
	patch := map[string]any{
		"spec": map[string]any{
			"unschedulable": true,
		},
	}

	patchBytes, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal cordon patch: %w", err)
	}

	_, err = a.clientset.CoreV1().Nodes().Patch(
		ctx,
		nodeID,
		types.MergePatchType,
		patchBytes,
		metav1.PatchOptions{},
	)
	if err != nil {
		return fmt.Errorf("cordon node: %w", err)
	}

	return nil
}

// DrainNode evicts the remaining non-daemon pods from the node. Pods that
// disappear mid-drain are fine.
func (a *Adapter) DrainNode(ctx context.Context, nodeID string) error {
	podList, err := a.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{
		FieldSelector: "spec.nodeName=" + nodeID,
	})
	if err != nil {
		return fmt.Errorf("list pods on node: %w", err)
	}

	for i := range podList.Items {
		pod := &podList.Items[i]
		if !isActiveWorkload(pod) {
			continue
		}

		if err := a.evictPod(ctx, pod.Namespace, pod.Name); err != nil {
			return err
		}

		a.logger.InfoContext(ctx, "pod evicted for drain",
			"node", nodeID,
			"pod", pod.Name,
			"namespace", pod.Namespace,
		)
	}

	return nil
}

func (a *Adapter) evictPod(ctx context.Context, namespace, name string) error {
	eviction := &policy.Eviction{
		TypeMeta: metav1.TypeMeta{
			APIVersion: evictionAPIVersion,
			Kind:       evictionKind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
	}

	err := a.clientset.PolicyV1().Evictions(namespace).Evict(ctx, eviction)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}

		return fmt.Errorf("evict pod %s/%s: %w", namespace, name, err)
	}

	return nil
}
