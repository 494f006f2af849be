package countsort

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/naga"

	"github.com/gogpu/countsort/internal/cache"
)

//go:embed shaders/count.wgsl
var countShaderTemplate string

//go:embed shaders/scan.wgsl
var scanShaderTemplate string

//go:embed shaders/sort.wgsl
var sortShaderTemplate string

// Entry points of the generated programs.
const (
	countEntryPoint     = "count"
	scanEntryPoint      = "workgroup_scan"
	propagateEntryPoint = "workgroup_propagate"
	sortEntryPoint      = "sort"
)

// placeholderPattern matches an unresolved {{NAME}} placeholder.
var placeholderPattern = regexp.MustCompile(`\{\{[A-Z_]+\}\}`)

// composeShader substitutes {{NAME}} placeholders in template. It fails if
// any placeholder is left unresolved.
func composeShader(name, template string, defines map[string]string) (string, error) {
	pairs := make([]string, 0, 2*len(defines))
	for k, v := range defines {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	src := strings.NewReplacer(pairs...).Replace(template)
	if missing := placeholderPattern.FindAllString(src, -1); len(missing) > 0 {
		return "", fmt.Errorf("countsort: shader %s: unresolved placeholders %v", name, missing)
	}
	return src, nil
}

// CountShaderSource returns the WGSL of the counting kernel.
func CountShaderSource(workgroupSize uint32) (string, error) {
	return composeShader("count", countShaderTemplate, map[string]string{
		"WORKGROUP_SIZE": strconv.FormatUint(uint64(workgroupSize), 10),
	})
}

// ScanShaderSource returns the WGSL holding the scan and propagate kernels
// of one level. The level is baked into the program as its element stride
// workgroupSize^level.
func ScanShaderSource(workgroupSize uint32, level int) (string, error) {
	if level < 0 || level >= MaxScanLevels {
		return "", fmt.Errorf("countsort: scan level %d outside [0, %d)", level, MaxScanLevels)
	}
	stride := uint64(1)
	for range level {
		stride *= uint64(workgroupSize)
	}
	if stride > uint64(^uint32(0)) {
		return "", fmt.Errorf("countsort: scan level %d stride overflows u32 with workgroup size %d", level, workgroupSize)
	}
	return composeShader(fmt.Sprintf("scan[%d]", level), scanShaderTemplate, map[string]string{
		"WORKGROUP_SIZE": strconv.FormatUint(uint64(workgroupSize), 10),
		"SCAN_LEVEL":     strconv.Itoa(level),
		"LEVEL_STRIDE":   strconv.FormatUint(stride, 10),
		"SCAN_STEPS":     koggeStoneSteps(workgroupSize),
	})
}

// SortShaderSource returns the WGSL of the scatter kernel.
func SortShaderSource(workgroupSize uint32) (string, error) {
	return composeShader("sort", sortShaderTemplate, map[string]string{
		"WORKGROUP_SIZE": strconv.FormatUint(uint64(workgroupSize), 10),
	})
}

// koggeStoneSteps emits the unrolled passes of an inclusive Kogge-Stone scan
// over the work-group array `partial`, with strides 1, 2, 4, ... < width.
// Each pass reads, synchronizes, writes, then synchronizes again.
func koggeStoneSteps(width uint32) string {
	var b strings.Builder
	for stride := uint32(1); stride < width; stride <<= 1 {
		fmt.Fprintf(&b, "    // stride %d\n", stride)
		fmt.Fprintf(&b, "    if lid >= %du {\n", stride)
		fmt.Fprintf(&b, "        value = value + partial[lid - %du];\n", stride)
		b.WriteString("    }\n")
		b.WriteString("    workgroupBarrier();\n")
		b.WriteString("    partial[lid] = value;\n")
		b.WriteString("    workgroupBarrier();\n")
	}
	return b.String()
}

// spirvPrograms memoizes SPIR-V by WGSL source, shared by all engines.
var spirvPrograms = cache.New[string, []uint32](64)

// compileSPIRV compiles WGSL to SPIR-V words with naga. Results are cached
// per source text.
func compileSPIRV(name, wgsl string) ([]uint32, error) {
	return spirvPrograms.GetOrCompute(wgsl, func() ([]uint32, error) {
		return compileSPIRVUncached(name, wgsl)
	})
}

func compileSPIRVUncached(name, wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("countsort: compile %s to SPIR-V: %w", name, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("countsort: compile %s to SPIR-V: %d bytes is not a whole number of words", name, len(spirvBytes))
	}
	return decodeUint32s(spirvBytes), nil
}
