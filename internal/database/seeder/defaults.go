package seeder

func Defaults() []Seeder {
	return []Seeder{
		DemoMembersSeeder{Members: DemoMembers()},
	}
}
