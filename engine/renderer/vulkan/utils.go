package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

// VulkanSafeStrings returns a terminated copy. The input is left untouched.
func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

// fixedString converts a zero terminated name array as returned by the driver.
func fixedString(arr []byte) string {
	return string(arr[:FindFirstZeroInByteArray(arr)])
}

func toBool32(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// sliceUint32 reinterprets SPIR-V bytes as words. len(data) must be a multiple of four.
func sliceUint32(data []byte) []uint32 {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// ResultString returns the name of a native result code.
func ResultString(r vk.Result) string {
	return result(r).String()
}
