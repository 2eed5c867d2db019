package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "EDT Scheduling API",
        "description": "Timetable booking and conflict detection service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "TimeSlots", "description": "Canonical weekly time slots"},
        {"name": "Schedules", "description": "Recurring session bookings"},
        {"name": "Conflicts", "description": "Double-booking ledger"},
        {"name": "Makeups", "description": "Makeup session lifecycle"},
        {"name": "Unavailabilities", "description": "Teacher unavailability windows"},
        {"name": "Generations", "description": "Timetable validation attempts"},
        {"name": "Notifications", "description": "Stored scheduling events"},
        {"name": "Catalog", "description": "Reference entities"}
    ],
    "paths": {
        "/time-slots": {
            "get": {
                "tags": ["TimeSlots"],
                "summary": "List time slots",
                "parameters": [
                    {"name": "dayOfWeek", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["TimeSlots"],
                "summary": "Resolve or create a slot by weekday and times",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveTimeSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/time-slots/{id}": {
            "get": {
                "tags": ["TimeSlots"],
                "summary": "Get time slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["TimeSlots"],
                "summary": "Rename time slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RenameTimeSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List schedules",
                "parameters": [
                    {"name": "subjectId", "in": "query", "type": "string"},
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "roomId", "in": "query", "type": "string"},
                    {"name": "dayOfWeek", "in": "query", "type": "integer"},
                    {"name": "isCancelled", "in": "query", "type": "boolean"},
                    {"name": "dateFrom", "in": "query", "type": "string"},
                    {"name": "dateTo", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"},
                    {"name": "sortBy", "in": "query", "type": "string"},
                    {"name": "sortOrder", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Schedules"],
                "summary": "Book a recurring session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateScheduleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Room or teacher already booked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/{id}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Get schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Schedules"],
                "summary": "Rewrite a schedule's assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Room or teacher already booked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Schedules"],
                "summary": "Soft-delete schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/schedules/{id}/cancel": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Cancel a schedule, optionally proposing a makeup",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CancelScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/check-conflicts": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Dry-run a booking against existing schedules",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckConflictsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/weekly": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Weekly timetable projection",
                "parameters": [
                    {"name": "date", "in": "query", "type": "string"},
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "roomId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/stats": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Booking, makeup and conflict counts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts": {
            "get": {
                "tags": ["Conflicts"],
                "summary": "List unresolved conflicts, most severe first",
                "parameters": [
                    {"name": "conflictType", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "scheduleId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/{id}/resolve": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Resolve a conflict",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveConflictRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/scan": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Run a reconciliation scan now",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A scan is already running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/makeup-sessions": {
            "get": {
                "tags": ["Makeups"],
                "summary": "List makeup sessions",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "scheduleId", "in": "query", "type": "string"},
                    {"name": "teacherId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Makeups"],
                "summary": "Propose a makeup session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateMakeupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/makeup-sessions/{id}/approve": {
            "post": {
                "tags": ["Makeups"],
                "summary": "Approve a pending makeup and book its slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Proposed slot already booked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/makeup-sessions/{id}/reject": {
            "post": {
                "tags": ["Makeups"],
                "summary": "Reject a pending makeup",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/makeup-sessions/{id}/complete": {
            "post": {
                "tags": ["Makeups"],
                "summary": "Mark an approved makeup as held",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/unavailabilities": {
            "get": {
                "tags": ["Unavailabilities"],
                "summary": "List unavailability windows",
                "parameters": [
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string"},
                    {"name": "dateTo", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Unavailabilities"],
                "summary": "Declare a teacher unavailable",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUnavailabilityRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/unavailabilities/{id}": {
            "delete": {
                "tags": ["Unavailabilities"],
                "summary": "Remove an unavailability window",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/generations": {
            "get": {
                "tags": ["Generations"],
                "summary": "List generation attempts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Generations"],
                "summary": "Start a timetable validation attempt",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generations/{id}": {
            "get": {
                "tags": ["Generations"],
                "summary": "Get generation attempt",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generations/{id}/cancel": {
            "post": {
                "tags": ["Generations"],
                "summary": "Cancel a running generation attempt",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List a recipient's notifications",
                "parameters": [
                    {"name": "recipientId", "in": "query", "required": true, "type": "string"},
                    {"name": "unread", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark a notification as read",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/teachers": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List active teachers",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rooms": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List active rooms",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ResolveTimeSlotRequest": {
            "type": "object",
            "properties": {
                "day_of_week": {"type": "integer"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "name": {"type": "string"}
            },
            "required": ["day_of_week", "start_time", "end_time"]
        },
        "RenameTimeSlotRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"}
            },
            "required": ["name"]
        },
        "CreateScheduleRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "subject_id": {"type": "string"},
                "teacher_id": {"type": "string"},
                "room_id": {"type": "string"},
                "day_of_week": {"type": "integer"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "student_count": {"type": "integer"},
                "notes": {"type": "string"},
                "program_ids": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["subject_id", "teacher_id", "room_id", "day_of_week", "start_time", "end_time", "start_date", "end_date"]
        },
        "UpdateScheduleRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "subject_id": {"type": "string"},
                "teacher_id": {"type": "string"},
                "room_id": {"type": "string"},
                "day_of_week": {"type": "integer"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "student_count": {"type": "integer"},
                "notes": {"type": "string"}
            },
            "required": ["subject_id", "teacher_id", "room_id", "day_of_week", "start_time", "end_time", "start_date", "end_date"]
        },
        "CancelScheduleRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"},
                "makeup": {"$ref": "#/definitions/MakeupProposalRequest"}
            },
            "required": ["reason"]
        },
        "MakeupProposalRequest": {
            "type": "object",
            "properties": {
                "proposed_date": {"type": "string"},
                "proposed_time_slot_id": {"type": "string"},
                "proposed_room_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["proposed_date", "proposed_time_slot_id", "proposed_room_id"]
        },
        "CheckConflictsRequest": {
            "type": "object",
            "properties": {
                "teacher_id": {"type": "string"},
                "room_id": {"type": "string"},
                "day_of_week": {"type": "integer"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "exclude_schedule_id": {"type": "string"}
            },
            "required": ["teacher_id", "room_id", "day_of_week", "start_time", "end_time", "start_date", "end_date"]
        },
        "CreateMakeupRequest": {
            "type": "object",
            "properties": {
                "original_schedule_id": {"type": "string"},
                "proposed_date": {"type": "string"},
                "proposed_time_slot_id": {"type": "string"},
                "proposed_room_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["original_schedule_id", "proposed_date", "proposed_time_slot_id", "proposed_room_id"]
        },
        "CreateUnavailabilityRequest": {
            "type": "object",
            "properties": {
                "teacher_id": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "unavailability_type": {"type": "string"},
                "reason": {"type": "string"},
                "is_all_day": {"type": "boolean"}
            },
            "required": ["teacher_id", "start_date", "end_date", "unavailability_type"]
        },
        "ResolveConflictRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            },
            "required": ["notes"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
