package description

import "github.com/hashicorp/hcl/v2"

// Schema structs for the fixed-shape sections of a description. Ordered
// collections (buffers, kernels, cpus, runs, arguments, constants,
// bindings, executions, qos) stay *hcl.Attribute and are walked with
// Node.Entries; values that may carry a base prefix are read with
// Node.Int or Node.Uint. Unknown keys land in Remain and are ignored.

type recipeFile struct {
	Header    *hcl.Attribute `hcl:"header,optional"`
	Resources *hcl.Attribute `hcl:"resources,optional"`
	Execution *hcl.Attribute `hcl:"execution,optional"`
	Remain    hcl.Body       `hcl:",remain"`
}

type headerSchema struct {
	Xclbin     *string  `hcl:"xclbin,optional"`
	XclbinPath *string  `hcl:"xclbin_path,optional"`
	Program    string   `hcl:"program,optional"`
	Remain     hcl.Body `hcl:",remain"`
}

type resourcesSchema struct {
	Buffers *hcl.Attribute `hcl:"buffers"`
	Kernels *hcl.Attribute `hcl:"kernels,optional"`
	CPUs    *hcl.Attribute `hcl:"cpus,optional"`
	Remain  hcl.Body       `hcl:",remain"`
}

type bufferSchema struct {
	Name   *string  `hcl:"name,optional"`
	Type   string   `hcl:"type"`
	Size   *int     `hcl:"size,optional"`
	Remain hcl.Body `hcl:",remain"`
}

type kernelSchema struct {
	Name             string   `hcl:"name"`
	Instance         *string  `hcl:"instance,optional"`
	XclbinKernelName *string  `hcl:"xclbin_kernel_name,optional"`
	Ctrlcode         string   `hcl:"ctrlcode,optional"`
	Remain           hcl.Body `hcl:",remain"`
}

type cpuSchema struct {
	Name        string   `hcl:"name"`
	LibraryName *string  `hcl:"library_name,optional"`
	LibraryPath *string  `hcl:"library_path,optional"`
	Remain      hcl.Body `hcl:",remain"`
}

type executionSchema struct {
	RunlistThreshold *int           `hcl:"runlist_threshold,optional"`
	Runs             *hcl.Attribute `hcl:"runs"`
	Remain           hcl.Body       `hcl:",remain"`
}

type runSchema struct {
	Name      string         `hcl:"name"`
	Where     *string        `hcl:"where,optional"`
	Arguments *hcl.Attribute `hcl:"arguments,optional"`
	Constants *hcl.Attribute `hcl:"constants,optional"`
	Remain    hcl.Body       `hcl:",remain"`
}

type argumentSchema struct {
	Name   string   `hcl:"name"`
	ArgIdx int      `hcl:"argidx"`
	Offset int      `hcl:"offset,optional"`
	Size   int      `hcl:"size,optional"`
	Remain hcl.Body `hcl:",remain"`
}

type constantSchema struct {
	ArgIdx int            `hcl:"argidx"`
	Type   string         `hcl:"type"`
	Value  *hcl.Attribute `hcl:"value"`
	Remain hcl.Body       `hcl:",remain"`
}

type profileFile struct {
	QoS        *hcl.Attribute `hcl:"qos,optional"`
	Bindings   *hcl.Attribute `hcl:"bindings,optional"`
	Execution  *hcl.Attribute `hcl:"execution,optional"`
	Executions *hcl.Attribute `hcl:"executions,optional"`
	Remain     hcl.Body       `hcl:",remain"`
}

type bindingSchema struct {
	Name     *string        `hcl:"name,optional"`
	Size     int            `hcl:"size,optional"`
	Init     *hcl.Attribute `hcl:"init,optional"`
	Reinit   bool           `hcl:"reinit,optional"`
	Rebind   bool           `hcl:"rebind,optional"`
	Validate *hcl.Attribute `hcl:"validate,optional"`
	Remain   hcl.Body       `hcl:",remain"`
}

type initSchema struct {
	Begin  int            `hcl:"begin,optional"`
	End    int            `hcl:"end,optional"`
	Debug  bool           `hcl:"debug,optional"`
	File   *string        `hcl:"file,optional"`
	Skip   int            `hcl:"skip,optional"`
	Stride *int           `hcl:"stride,optional"`
	Value  *hcl.Attribute `hcl:"value,optional"`
	Random bool           `hcl:"random,optional"`
	Remain hcl.Body       `hcl:",remain"`
}

type validateSchema struct {
	Begin  int      `hcl:"begin,optional"`
	End    int      `hcl:"end,optional"`
	Name   string   `hcl:"name,optional"`
	File   string   `hcl:"file,optional"`
	Skip   int      `hcl:"skip,optional"`
	Remain hcl.Body `hcl:",remain"`
}

type policySchema struct {
	Name       *string        `hcl:"name,optional"`
	Mode       *string        `hcl:"mode,optional"`
	Depth      int            `hcl:"depth,optional"`
	Iterations *int           `hcl:"iterations,optional"`
	Verbose    *bool          `hcl:"verbose,optional"`
	Validate   bool           `hcl:"validate,optional"`
	Iteration  *hcl.Attribute `hcl:"iteration,optional"`
	Remain     hcl.Body       `hcl:",remain"`
}

type iterationSchema struct {
	Bind     bool     `hcl:"bind,optional"`
	Init     bool     `hcl:"init,optional"`
	Wait     bool     `hcl:"wait,optional"`
	Validate bool     `hcl:"validate,optional"`
	SleepMs  int      `hcl:"sleep-ms,optional"`
	Remain   hcl.Body `hcl:",remain"`
}
