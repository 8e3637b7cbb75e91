package k8s

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/kubescaler/agentpool-autoscaler/internal/logic/scaler"
)

const mirrorPodAnnotation = "kubernetes.io/config.mirror"

func toDomainNode(node *corev1.Node, usage corev1.ResourceList, hasWorkload bool) scaler.Node {
	out := scaler.Node{
		ID:            node.Name,
		Labels:        node.Labels,
		HasWorkload:   hasWorkload,
		Unschedulable: node.Spec.Unschedulable,
		Capacity:      toDomainResources(node.Status.Capacity),
		Allocatable:   toDomainResources(node.Status.Allocatable),
	}

	if usage != nil {
		u := toDomainResources(usage)
		out.Utilization = &u
	}

	return out
}

func toDomainResources(list corev1.ResourceList) scaler.Resources {
	out := scaler.Resources{
		CPU:    *resource.NewMilliQuantity(0, resource.DecimalSI),
		Memory: *resource.NewQuantity(0, resource.BinarySI),
	}

	if cpu, ok := list[corev1.ResourceCPU]; ok {
		out.CPU = cpu.DeepCopy()
	}

	if memory, ok := list[corev1.ResourceMemory]; ok {
		out.Memory = memory.DeepCopy()
	}

	return out
}

func toDomainPendingPod(pod *corev1.Pod) scaler.PendingPod {
	cpu := resource.NewMilliQuantity(0, resource.DecimalSI)
	memory := resource.NewQuantity(0, resource.BinarySI)

	for i := range pod.Spec.Containers {
		requests := pod.Spec.Containers[i].Resources.Requests

		if c, ok := requests[corev1.ResourceCPU]; ok {
			cpu.Add(c)
		}

		if m, ok := requests[corev1.ResourceMemory]; ok {
			memory.Add(m)
		}
	}

	return scaler.PendingPod{
		ID: pod.Namespace + "/" + pod.Name,
		Requests: scaler.Resources{
			CPU:    *cpu,
			Memory: *memory,
		},
	}
}

// isPendingUnschedulable reports whether the scheduler has marked the pod
// unschedulable. Only such pods represent unmet capacity demand.
func isPendingUnschedulable(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodPending || pod.Spec.NodeName != "" {
		return false
	}

	for i := range pod.Status.Conditions {
		cond := &pod.Status.Conditions[i]
		if cond.Type == corev1.PodScheduled &&
			cond.Status == corev1.ConditionFalse &&
			cond.Reason == corev1.PodReasonUnschedulable {
			return true
		}
	}

	return false
}

// isActiveWorkload reports whether the pod pins its node against removal.
// Daemon and mirror pods run everywhere and never block a drain; finished
// pods hold no capacity.
func isActiveWorkload(pod *corev1.Pod) bool {
	if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
		return false
	}

	if _, ok := pod.Annotations[mirrorPodAnnotation]; ok {
		return false
	}

	for i := range pod.OwnerReferences {
		if pod.OwnerReferences[i].Kind == "DaemonSet" {
			return false
		}
	}

	return true
}
