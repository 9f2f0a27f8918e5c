package gpucore_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpucore"
	"github.com/vkngwrapper/gpucore/backend"
	"github.com/vkngwrapper/gpucore/memutils"
)

func TestCreateOptions_Defaults(t *testing.T) {
	device, err := gpucore.New(nil, gpucore.CreateOptions{})
	require.NoError(t, err)
	defer func() { require.NoError(t, device.Destroy()) }()

	options := device.Options()
	require.Equal(t, backend.TypeVulkan, options.Backend)
	require.Equal(t, 1024*1024, options.UploadPageSize)
	require.Equal(t, 8*1024*1024, options.DynamicHeapSize)
	require.Equal(t, uint(256), options.UploadAlignment)
	require.Equal(t, 1, options.PagesToReserve)
	require.Equal(t, [2]int{256, 32}, options.DescriptorChunkSize)
	require.Equal(t, [2]int{8192, 1024}, options.DescriptorHeapSize)

	var stats memutils.DetailedStatistics
	device.CalculateStatistics(&stats)
	require.Equal(t, 1, stats.FreeChunkCount)
	require.Equal(t, 1024*1024, stats.ChunkBytes)
}

func TestCreateOptions_InvalidAlignment(t *testing.T) {
	_, err := gpucore.New(nil, gpucore.CreateOptions{UploadAlignment: 300})
	require.ErrorIs(t, err, memutils.PowerOfTwoError)

	_, err = gpucore.New(nil, gpucore.CreateOptions{UploadPageSize: 1000})
	require.Error(t, err)

	_, err = gpucore.New(nil, gpucore.CreateOptions{UploadPageSize: 4096, DynamicHeapSize: 2048})
	require.Error(t, err)

	_, err = gpucore.New(nil, gpucore.CreateOptions{DescriptorChunkSize: [2]int{0, 64}, DescriptorHeapSize: [2]int{0, 32}})
	require.Error(t, err)
}

func TestParseCreateOptions(t *testing.T) {
	options, err := gpucore.ParseCreateOptions([]byte(`{
		"Backend": "D3D12",
		"ExternallySynchronized": true,
		"UploadPageSize": 65536,
		"DynamicHeapSize": 262144,
		"UploadAlignment": 512,
		"PagesToReserve": 2,
		"DescriptorChunkSize": {"CbvSrvUav": 128, "Sampler": 16},
		"DescriptorHeapSize": {"Sampler": 256},
		"Unrelated": {"nested": [1, 2, 3]}
	}`))
	require.NoError(t, err)

	require.Equal(t, backend.TypeD3D12, options.Backend)
	require.Equal(t, gpucore.CreateExternallySynchronized, options.Flags)
	require.Equal(t, 65536, options.UploadPageSize)
	require.Equal(t, 262144, options.DynamicHeapSize)
	require.Equal(t, uint(512), options.UploadAlignment)
	require.Equal(t, 2, options.PagesToReserve)
	require.Equal(t, [2]int{128, 16}, options.DescriptorChunkSize)
	require.Equal(t, [2]int{0, 256}, options.DescriptorHeapSize)

	device, err := gpucore.New(nil, options)
	require.NoError(t, err)
	require.True(t, device.Capabilities().SplitBarriers)
	require.Equal(t, 8192, device.Options().DescriptorHeapSize[0])
	require.NoError(t, device.Destroy())
}

func TestParseCreateOptions_Errors(t *testing.T) {
	_, err := gpucore.ParseCreateOptions([]byte(`{"Backend": "Glide"}`))
	require.Error(t, err)

	_, err = gpucore.ParseCreateOptions([]byte(`{"UploadPageSize": "large"}`))
	require.Error(t, err)

	_, err = gpucore.ParseCreateOptions([]byte(`{"UploadPageSize": 1`))
	require.Error(t, err)
}

func TestCreateFlags_String(t *testing.T) {
	require.Equal(t, "CreateExternallySynchronized", gpucore.CreateExternallySynchronized.String())
	require.Equal(t, "Sampler", gpucore.DescriptorHeapSampler.String())
}
