package dataclient_test

import (
	"database/sql"
	"errors"

	"github.com/DATA-DOG/go-sqlmock"
	. "gopkg.in/check.v1"

	"github.com/canonical/dataclient"
	"github.com/canonical/dataclient/dialect"
)

// TSQLSuite checks the statements sent to a SQL Server style database.
type TSQLSuite struct {
	db     *sql.DB
	mock   sqlmock.Sqlmock
	client *dataclient.Client
}

var _ = Suite(&TSQLSuite{})

func (s *TSQLSuite) SetUpTest(c *C) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	c.Assert(err, IsNil)
	s.db, s.mock = db, mock
	s.client = dataclient.New(dataclient.FromDB(db),
		dataclient.WithDialect(dialect.TSQL2005{}),
		dataclient.WithTypeCache(dataclient.NewTypeCache()))
}

func (s *TSQLSuite) TearDownTest(c *C) {
	c.Check(s.mock.ExpectationsWereMet(), IsNil)
	s.db.Close()
}

func (s *TSQLSuite) TestGeneratedSelect(c *C) {
	s.mock.ExpectQuery("SELECT [Id],[Name],[Degree] FROM [Staff] WHERE [Id] = @Id").
		WithArgs(sql.Named("Id", 1)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Name", "Degree"}).AddRow(1, "Ada", 3))

	staff, err := dataclient.ExecuteModels[Staff](ctx, s.client, dataclient.Query{Args: dataclient.M{"Id": 1}})
	c.Assert(err, IsNil)
	c.Assert(staff, HasLen, 1)
	c.Check(staff[0].Id, Equals, int64(1))
	c.Check(staff[0].Name, Equals, "Ada")
	c.Check(*staff[0].Degree, Equals, int64(3))
}

func (s *TSQLSuite) TestPagedSelect(c *C) {
	s.mock.ExpectQuery("SELECT * FROM (SELECT *, ROW_NUMBER() OVER (ORDER BY (SELECT 0)) AS [__dc_rownum] " +
		"FROM (SELECT TOP (15) [Id],[Name],[Degree] FROM [Staff]) AS [__dc_inner]) AS [__dc_paged] " +
		"WHERE [__dc_rownum] BETWEEN 11 AND 15").
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Name", "Degree", "__dc_rownum"}).
			AddRow(11, "K", nil, 11).
			AddRow(12, "L", 2, 12))

	staff, err := dataclient.ExecuteModels[Staff](ctx, s.client, dataclient.Query{Skip: 10, Take: 5})
	c.Assert(err, IsNil)
	c.Assert(staff, HasLen, 2)
	c.Check(staff[0].Id, Equals, int64(11))
	c.Check(staff[0].Degree, IsNil)
	c.Check(*staff[1].Degree, Equals, int64(2))
}

func (s *TSQLSuite) TestPagedCallerSelect(c *C) {
	s.mock.ExpectQuery("SELECT * FROM (SELECT *, ROW_NUMBER() OVER (ORDER BY (SELECT 0)) AS [__dc_rownum] " +
		"FROM (SELECT DISTINCT TOP (2147483647) Name FROM Staff WHERE Degree > @Degree) AS [__dc_inner]) AS [__dc_paged] " +
		"WHERE [__dc_rownum] BETWEEN 4 AND 2147483647").
		WithArgs(sql.Named("Degree", 1)).
		WillReturnRows(sqlmock.NewRows([]string{"Name", "__dc_rownum"}).AddRow("D", 4))

	names, err := dataclient.ExecuteModels[string](ctx, s.client, dataclient.Query{
		SQL:  "SELECT DISTINCT Name FROM Staff WHERE Degree > @Degree;",
		Args: dataclient.M{"Degree": 1},
		Skip: 3,
	})
	c.Assert(err, IsNil)
	c.Check(names, DeepEquals, []string{"D"})
}

func (s *TSQLSuite) TestUpsert(c *C) {
	s.mock.ExpectExec("IF EXISTS(SELECT 1 FROM [Staff] WHERE [Id] = @w_Id) " +
		"BEGIN UPDATE [Staff] SET [Id] = @c_Id,[Name] = @c_Name,[Degree] = @c_Degree WHERE [Id] = @w_Id END " +
		"ELSE BEGIN INSERT INTO [Staff] ([Id],[Name],[Degree]) VALUES (@c_Id,@c_Name,@c_Degree) END").
		WithArgs(
			sql.Named("c_Id", 1),
			sql.Named("c_Name", "Ada"),
			sql.Named("c_Degree", nil),
			sql.Named("w_Id", 1),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.client.InsertOrUpdateModel(ctx, Staff{Id: 1, Name: "Ada"}, dataclient.M{"Id": 1})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))
}

func (s *TSQLSuite) TestModelWrites(c *C) {
	s.mock.ExpectExec("INSERT INTO [person] ([id],[name],[postcode]) VALUES (@c_id,@c_name,@c_postcode)").
		WithArgs(sql.Named("c_id", 5), sql.Named("c_name", "Jo"), sql.Named("c_postcode", "2000")).
		WillReturnResult(sqlmock.NewResult(5, 1))
	s.mock.ExpectExec("UPDATE [person] SET [id] = @c_id,[name] = @c_name,[postcode] = @c_postcode WHERE [id] = @w_id").
		WithArgs(sql.Named("c_id", 6), sql.Named("c_name", "Jo"), sql.Named("c_postcode", "2000"), sql.Named("w_id", 5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("DELETE FROM [person] WHERE [id] = @w_id").
		WithArgs(sql.Named("w_id", 6)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := s.client.InsertModel(ctx, Person{ID: 5, Fullname: "Jo", PostalCode: "2000"})
	c.Assert(err, IsNil)
	_, err = s.client.UpdateModel(ctx, Person{ID: 6, Fullname: "Jo", PostalCode: "2000"}, dataclient.M{"id": 5})
	c.Assert(err, IsNil)
	_, err = s.client.DeleteModel(ctx, "person", dataclient.M{"id": 6})
	c.Assert(err, IsNil)
}

func (s *TSQLSuite) TestStoredProcedure(c *C) {
	s.mock.ExpectExec("EXEC [usp_Promote] @Degree=@Degree,@Id=@Id").
		WithArgs(sql.Named("Degree", 4), sql.Named("Id", 7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery("EXEC [usp_CountStaff]").
		WillReturnRows(sqlmock.NewRows([]string{""}).AddRow(12))

	n, err := s.client.ExecuteNone(ctx, dataclient.Query{
		SQL:  "usp_Promote",
		Args: dataclient.M{"Id": 7, "Degree": 4},
		Kind: dataclient.StoredProcedure,
	})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))

	count, err := dataclient.ExecuteObject[int](ctx, s.client, dataclient.Query{SQL: "usp_CountStaff", Kind: dataclient.StoredProcedure})
	c.Assert(err, IsNil)
	c.Check(count, Equals, 12)

	_, err = dataclient.ExecuteModels[Staff](ctx, s.client, dataclient.Query{SQL: "usp_Staff", Kind: dataclient.StoredProcedure, Take: 5})
	c.Check(err, ErrorMatches, `cannot restrict the rows of procedure "usp_Staff"`)
}

func (s *TSQLSuite) TestDriverErrors(c *C) {
	deadlock := errors.New("deadlock victim")
	s.mock.ExpectExec("DELETE FROM [Staff]").WillReturnError(deadlock)
	s.mock.ExpectQuery("SELECT Name FROM Staff").WillReturnError(deadlock)
	s.mock.ExpectQuery("SELECT Name FROM Staff").
		WillReturnRows(sqlmock.NewRows([]string{"Name"}).AddRow("A").AddRow("B").RowError(1, deadlock))

	_, err := s.client.DeleteModel(ctx, "Staff", nil)
	c.Check(err, Equals, deadlock)

	_, err = dataclient.ExecuteObject[string](ctx, s.client, dataclient.Query{SQL: "SELECT Name FROM Staff"})
	c.Check(err, Equals, deadlock)

	_, err = dataclient.ExecuteModels[string](ctx, s.client, dataclient.Query{SQL: "SELECT Name FROM Staff"})
	c.Check(err, Equals, deadlock)
}

func (s *TSQLSuite) TestMalformedPage(c *C) {
	_, err := dataclient.ExecuteModels[Staff](ctx, s.client, dataclient.Query{SQL: "WITH x AS (SELECT 1) SELECT * FROM x", Take: 1})
	c.Check(err, ErrorMatches, `cannot page statement .*: malformed select statement`)
}
