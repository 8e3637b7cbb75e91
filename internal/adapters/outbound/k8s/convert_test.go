package k8s

import (
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestIsPendingUnschedulable(t *testing.T) {
	t.Parallel()

	t.Run("unschedulable pending pod matches", func(t *testing.T) {
		t.Parallel()

		require.True(t, isPendingUnschedulable(unschedulablePod("p", "100m", "64Mi")))
	})

	t.Run("pending pod already bound to a node does not match", func(t *testing.T) {
		t.Parallel()

		pod := unschedulablePod("p", "100m", "64Mi")
		pod.Spec.NodeName = "n1"

		require.False(t, isPendingUnschedulable(pod))
	})

	t.Run("pending pod without the scheduler verdict does not match", func(t *testing.T) {
		t.Parallel()

		pod := unschedulablePod("p", "100m", "64Mi")
		pod.Status.Conditions = nil

		require.False(t, isPendingUnschedulable(pod))
	})

	t.Run("running pod does not match", func(t *testing.T) {
		t.Parallel()

		require.False(t, isPendingUnschedulable(runningPod("p", "n1")))
	})
}

func TestIsActiveWorkload(t *testing.T) {
	t.Parallel()

	t.Run("running pod is active", func(t *testing.T) {
		t.Parallel()

		require.True(t, isActiveWorkload(runningPod("p", "n1")))
	})

	t.Run("daemon pod is not", func(t *testing.T) {
		t.Parallel()

		require.False(t, isActiveWorkload(daemonPod("p", "n1")))
	})

	t.Run("mirror pod is not", func(t *testing.T) {
		t.Parallel()

		pod := runningPod("p", "n1")
		pod.Annotations = map[string]string{mirrorPodAnnotation: "checksum"}

		require.False(t, isActiveWorkload(pod))
	})

	t.Run("finished pods are not", func(t *testing.T) {
		t.Parallel()

		for _, phase := range []corev1.PodPhase{corev1.PodSucceeded, corev1.PodFailed} {
			pod := runningPod("p", "n1")
			pod.Status.Phase = phase

			require.False(t, isActiveWorkload(pod))
		}
	})
}

func TestToDomainPendingPod(t *testing.T) {
	t.Parallel()

	t.Run("sums requests across containers", func(t *testing.T) {
		t.Parallel()

		pod := unschedulablePod("multi", "250m", "128Mi")
		pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{
			Name: "sidecar",
			Resources: corev1.ResourceRequirements{
				Requests: resourceList("750m", "384Mi"),
			},
		})

		out := toDomainPendingPod(pod)

		require.Equal(t, "default/multi", out.ID)
		require.Equal(t, int64(1000), out.Requests.CPU.MilliValue())
		require.Equal(t, int64(512<<20), out.Requests.Memory.Value())
	})

	t.Run("containers without requests count as zero", func(t *testing.T) {
		t.Parallel()

		pod := &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "bare", Namespace: "default"},
			Spec: corev1.PodSpec{
				Containers: []corev1.Container{{Name: "main"}},
			},
		}

		out := toDomainPendingPod(pod)

		require.True(t, out.Requests.CPU.IsZero())
		require.True(t, out.Requests.Memory.IsZero())
	})
}
