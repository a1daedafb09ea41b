package workflow

// LeaveDefinition is the two-stage leave approval chain. HR and admin may
// act on either stage.
func LeaveDefinition() *Definition {
	return mustDefinition(Definition{
		RequestType: RequestTypeLeave,
		Stages: []Stage{
			{ID: StageManagerReview, Label: "Manager review", RequiredRoles: NewRoleSet(RoleApprover, RoleHR, RoleAdmin)},
			{ID: StageHRReview, Label: "HR review", RequiredRoles: NewRoleSet(RoleHR, RoleAdmin)},
		},
		ElevatedRoles:  NewRoleSet(RoleHR, RoleAdmin),
		OversightRoles: NewRoleSet(RoleAdmin, RoleHR),
	})
}

// FundRequestDefinition is the three-stage fund request chain
func FundRequestDefinition() *Definition {
	return mustDefinition(Definition{
		RequestType: RequestTypeFundRequest,
		Stages: []Stage{
			{ID: StagePMReview, Label: "Project manager review", RequiredRoles: NewRoleSet(RoleOperationsManager)},
			{ID: StagePOReview, Label: "Purchasing review", RequiredRoles: NewRoleSet(RolePurchasingOfficer)},
			{ID: StageMgmtReview, Label: "Management review", RequiredRoles: NewRoleSet(RoleHR, RoleAdmin, RoleUpperManagement)},
		},
		OversightRoles: NewRoleSet(RoleAdmin),
	})
}

// FailureToLogDefinition is the single-stage time correction chain
func FailureToLogDefinition() *Definition {
	return mustDefinition(Definition{
		RequestType: RequestTypeFailureToLog,
		Stages: []Stage{
			{ID: StageSingleReview, Label: "Review", RequiredRoles: NewRoleSet(RoleApprover, RoleHR, RoleAdmin)},
		},
		OversightRoles: NewRoleSet(RoleAdmin, RoleHR),
	})
}

func mustDefinition(d Definition) *Definition {
	def, err := NewDefinition(d)
	if err != nil {
		panic(err)
	}
	return def
}
