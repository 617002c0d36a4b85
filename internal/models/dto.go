package models

// StatusCounts is the per-status breakdown used by the dashboards.
type StatusCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

func (s StatusCounts) Total() int64 {
	return s.Pending + s.Approved + s.Rejected
}

type AdminStats struct {
	TotalCourses     int64        `json:"total_courses"`
	CoursesByStatus  StatusCounts `json:"courses_by_status"`
	TotalStudents    int64        `json:"total_students"`
	TotalLecturers   int64        `json:"total_lecturers"`
	TotalEnrollments int64        `json:"total_enrollments"`
}

type LecturerStats struct {
	TotalCourses    int64        `json:"total_courses"`
	CoursesByStatus StatusCounts `json:"courses_by_status"`
	TotalEnrolled   int64        `json:"total_enrolled"`
}

type StudentStats struct {
	EnrolledCourses  int64 `json:"enrolled_courses"`
	AvailableCourses int64 `json:"available_courses"`
}
