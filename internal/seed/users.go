package seed

import "agriconnect/pkg/types"

type fakeUserSeed struct {
	Name  string
	State string
	Role  types.Role
}

var fakeUsers = []fakeUserSeed{
	{Name: "Asha Devi", State: "Punjab", Role: types.RoleFarmer},
	{Name: "Ravi Kumar", State: "Bihar", Role: types.RoleFarmer},
	{Name: "Lakshmi Narayan", State: "Andhra Pradesh", Role: types.RoleFarmer},
	{Name: "Gurpreet Singh", State: "Haryana", Role: types.RoleFarmer},
	{Name: "Meena Patil", State: "Maharashtra", Role: types.RoleFarmer},
	{Name: "Suresh Yadav", State: "Uttar Pradesh", Role: types.RoleFarmer},
	{Name: "Officer Mehta", Role: types.RoleOfficial},
	{Name: "Officer Rao", Role: types.RoleOfficial},
}

func fakeActors(role types.Role) []types.Actor {
	actors := make([]types.Actor, 0, len(fakeUsers))
	for _, user := range fakeUsers {
		if user.Role != role {
			continue
		}
		actors = append(actors, types.Actor{
			Role:  user.Role,
			Name:  user.Name,
			ID:    types.ActorID(user.Role, user.Name),
			State: user.State,
		})
	}
	return actors
}
