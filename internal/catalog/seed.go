package catalog

import "github.com/matthewbaird/onboarding/internal/types"

// DemoEntities is the demo household: two people and a family trust, and the
// three accounts they are opening. Attribute values pre-fill the forms; the
// gaps are left for the user to complete.
func DemoEntities() []Entity {
	return []Entity{
		{
			Ref:         types.EntityRef{Kind: types.KindMember, ID: "john-smith"},
			DisplayName: "John Smith",
			Subtype:     "person",
			Attributes: map[string]string{
				"firstName":   "John",
				"lastName":    "Smith",
				"dateOfBirth": "1985-06-15",
				"email":       "john.smith@example.com",
				"phoneHome":   "(555) 123-4567",
				"homeAddress": "123 Main Street, Springfield, IL 62701",
				"citizenship": "us-citizen",
			},
		},
		{
			Ref:         types.EntityRef{Kind: types.KindMember, ID: "jane-smith"},
			DisplayName: "Jane Smith",
			Subtype:     "person",
			Attributes: map[string]string{
				"firstName":   "Jane",
				"lastName":    "Smith",
				"dateOfBirth": "1987-03-22",
				"email":       "jane.smith@example.com",
				"phoneMobile": "(555) 987-6543",
				"homeAddress": "123 Main Street, Springfield, IL 62701",
			},
		},
		{
			Ref:         types.EntityRef{Kind: types.KindMember, ID: "smith-family-trust"},
			DisplayName: "Smith Family Trust",
			Subtype:     "trust",
			Attributes: map[string]string{
				"firstName":   "Smith Family",
				"lastName":    "Trust",
				"homeAddress": "123 Main Street, Springfield, IL 62701",
			},
		},
		{
			Ref:         types.EntityRef{Kind: types.KindAccount, ID: "joint-account"},
			DisplayName: "Joint Brokerage Account",
			Subtype:     "joint",
			Attributes: map[string]string{
				"accountName":         "Smith Joint Brokerage",
				"accountType":         "joint-wros",
				"investmentObjective": "growth",
			},
		},
		{
			Ref:         types.EntityRef{Kind: types.KindAccount, ID: "individual-ira"},
			DisplayName: "John's Roth IRA",
			Subtype:     "ira",
			Attributes: map[string]string{
				"accountName": "John Smith Roth IRA",
				"accountType": "roth-ira",
			},
		},
		{
			Ref:         types.EntityRef{Kind: types.KindAccount, ID: "trust-account"},
			DisplayName: "Smith Family Trust Account",
			Subtype:     "trust",
			Attributes: map[string]string{
				"accountName": "Smith Family Trust",
				"accountType": "trust",
			},
		},
	}
}

// Demo returns a catalog of DemoEntities.
func Demo() *Catalog {
	c, err := New(DemoEntities())
	if err != nil {
		panic(err)
	}
	return c
}
