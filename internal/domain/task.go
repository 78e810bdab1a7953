package domain

// TaskType is the kind of maintenance task a request is about.
type TaskType string

// Known task types.
const (
	TaskFaultIsolation     TaskType = "fault_isolation"
	TaskFunctionalTest     TaskType = "functional_test"
	TaskOperationalTest    TaskType = "operational_test"
	TaskRemoveProcedure    TaskType = "remove_procedure"
	TaskInstallProcedure   TaskType = "install_procedure"
	TaskSystemDescription  TaskType = "system_description"
	TaskDetailedInspection TaskType = "detailed_inspection"
	TaskDisassembly        TaskType = "disassembly"
	TaskAssembly           TaskType = "assembly"
	TaskAdjustment         TaskType = "adjustment"
	TaskBondingCheck       TaskType = "bonding_check"
	TaskOther              TaskType = "other"
)

// DefaultTaskType is used for empty and unrecognized task types.
const DefaultTaskType = TaskFaultIsolation

var taskLabels = map[TaskType]string{
	TaskFaultIsolation:     "Fault Isolation",
	TaskFunctionalTest:     "Functional Test",
	TaskOperationalTest:    "Operational Test",
	TaskRemoveProcedure:    "Remove Procedure",
	TaskInstallProcedure:   "Install Procedure",
	TaskSystemDescription:  "System Description",
	TaskDetailedInspection: "Detailed Inspection",
	TaskDisassembly:        "Disassembly Procedure",
	TaskAssembly:           "Assembly Procedure",
	TaskAdjustment:         "Adjustment / Calibration",
	TaskBondingCheck:       "Bonding Check",
	TaskOther:              "Maintenance Task",
}

var taskInstructions = map[TaskType]string{
	TaskFaultIsolation: `TASK TYPE: FAULT ISOLATION
Required:
- Interpret system operation from the AMP
- Determine the conditions that raise the CAS message or anomaly
- Trace component logic through the AWDP wiring diagrams
- Locate and analyze the AWDP schematic for the affected system
- Identify connectors, pin numbers and wire routing from the AWDP
- Provide recommended tests, likely causes with probability %, and affected parts`,
	TaskFunctionalTest: `TASK TYPE: FUNCTIONAL TEST
Required:
- Step-by-step test procedure from the AMP
- Expected result for each step
- Test equipment required (Table 3)
- Pass/fail criteria
- AWDP wiring data for every electrical connection under test`,
	TaskOperationalTest: `TASK TYPE: OPERATIONAL TEST
Required:
- Operational verification steps from the AMP
- Expected system behavior and operating limits
- AWDP schematic for the system under test, with signal flow
- Warning conditions to monitor
- Connector pin-outs and wiring from the AWDP`,
	TaskRemoveProcedure: `TASK TYPE: REMOVE PROCEDURE
Required:
- Step-by-step removal procedure from the AMP
- Prerequisite conditions and access panels
- Tools and support equipment (Table 3)
- Safety precautions`,
	TaskInstallProcedure: `TASK TYPE: INSTALL PROCEDURE
Required:
- Step-by-step installation procedure from the AMP
- Torque values and specifications
- Verification tests after installation
- Tools and support equipment (Table 3)
- Safety precautions`,
	TaskSystemDescription: `TASK TYPE: SYSTEM DESCRIPTION
Required:
- Technical explanation of how the system works
- Component interactions and system logic flow
- System architecture references from the AMP
- No troubleshooting steps`,
	TaskAdjustment: `TASK TYPE: ADJUSTMENT / CALIBRATION
Required:
- Exact adjustment procedure from the manual
- Location of the adjustment mechanism
- Expected readings before and after adjustment
- Warm-up time requirements
- Calibration tools required`,
	TaskDetailedInspection: `TASK TYPE: DETAILED INSPECTION
Required:
- Inspection criteria and limits
- Visual inspection steps
- Acceptance and rejection criteria
- Measurement methods where applicable`,
}

// ParseTaskType maps a raw task type to a known TaskType. Empty and
// unrecognized values map to DefaultTaskType.
func ParseTaskType(raw string) TaskType {
	t := TaskType(raw)
	if _, ok := taskLabels[t]; ok {
		return t
	}
	return DefaultTaskType
}

// Normalize returns t when it is a known task type and DefaultTaskType
// otherwise.
func (t TaskType) Normalize() TaskType { return ParseTaskType(string(t)) }

// IsKnown reports whether t is one of the declared task types.
func (t TaskType) IsKnown() bool {
	_, ok := taskLabels[t]
	return ok
}

// Label returns the human readable name of the task type.
func (t TaskType) Label() string { return taskLabels[t.Normalize()] }

// Instructions returns the generation instructions for the task type.
// Task types without dedicated instructions use the fault isolation text.
func (t TaskType) Instructions() string {
	if s, ok := taskInstructions[t.Normalize()]; ok {
		return s
	}
	return taskInstructions[TaskFaultIsolation]
}

// IsFault reports whether the task is fault oriented: fault isolation,
// operational test or functional test.
func (t TaskType) IsFault() bool {
	switch t.Normalize() {
	case TaskFaultIsolation, TaskOperationalTest, TaskFunctionalTest:
		return true
	}
	return false
}

// IsProcedure reports whether the task is a removal, installation,
// disassembly or assembly procedure.
func (t TaskType) IsProcedure() bool {
	switch t.Normalize() {
	case TaskRemoveProcedure, TaskInstallProcedure, TaskDisassembly, TaskAssembly:
		return true
	}
	return false
}

// IsRemoveInstall reports whether the task is a remove or install procedure.
func (t TaskType) IsRemoveInstall() bool {
	n := t.Normalize()
	return n == TaskRemoveProcedure || n == TaskInstallProcedure
}
